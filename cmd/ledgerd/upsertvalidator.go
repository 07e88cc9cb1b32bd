// Copyright 2025 Certen Protocol
//
package ledgerd

import (
	"context"
	"encoding/json"
	"fmt"

	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/spf13/cobra"

	"github.com/bftledger/node/pkg/config"
	appcrypto "github.com/bftledger/node/pkg/crypto"
	"github.com/bftledger/node/pkg/election"
	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/storage"
	"github.com/bftledger/node/pkg/txmodel"
)

// newUpsertValidatorCommand groups the three election sub-actions the spec
// requires (spec.md §6, §9): build+sign+submit a proposal, build+sign+submit
// a vote, and a read-only status query. Submission goes over the BFT
// engine's own RPC via BroadcastTxSync, the same path the teacher's
// pkg/consensus/bft_integration.go uses against an in-process CometBFT node.
func newUpsertValidatorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upsert-validator",
		Short: "Propose, vote on, or inspect a validator-set election",
	}
	cmd.AddCommand(newElectionNewCommand(), newElectionApproveCommand(), newElectionShowCommand())
	return cmd
}

func newElectionNewCommand() *cobra.Command {
	var (
		rpcAddr     string
		keyPath     string
		proposedKey string
		nodeID      string
		power       int64
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Build, sign, and submit a VALIDATOR_ELECTION proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := appcrypto.LoadKeyFile(keyPath)
			if err != nil {
				return err
			}

			store, err := openStoreFromConfig()
			if err != nil {
				return err
			}
			defer store.Close()

			height, err := latestValidatorHeight(store)
			if err != nil {
				return fmt.Errorf("resolve current height: %w", err)
			}
			vs, err := store.GetValidators(height)
			if err != nil {
				return fmt.Errorf("load current validator set: %w", err)
			}

			tx, err := election.NewProposal(vs.Validators, priv, appcrypto.EncodePublicKey(pub), proposedKey, nodeID, power)
			if err != nil {
				return err
			}
			if err := broadcastTx(cmd.Context(), rpcAddr, tx); err != nil {
				return err
			}
			fmt.Printf("submitted election proposal %s\n", tx.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", "tcp://127.0.0.1:26657", "BFT engine RPC address")
	cmd.Flags().StringVar(&keyPath, "key-path", "./data/node_key.json", "initiator's Ed25519 key file")
	cmd.Flags().StringVar(&proposedKey, "proposed-public-key", "", "base58 public key being proposed")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "node id the proposed power change applies to")
	cmd.Flags().Int64Var(&power, "power", 0, "proposed voting power (0 removes the validator)")
	cmd.MarkFlagRequired("proposed-public-key")
	cmd.MarkFlagRequired("node-id")
	return cmd
}

func newElectionApproveCommand() *cobra.Command {
	var (
		rpcAddr     string
		keyPath     string
		electionID  string
		outputIndex int
	)

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Build, sign, and submit a VALIDATOR_ELECTION_VOTE",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := appcrypto.LoadKeyFile(keyPath)
			if err != nil {
				return err
			}

			store, err := openStoreFromConfig()
			if err != nil {
				return err
			}
			defer store.Close()

			electionTx, err := store.GetTransaction(electionID)
			if err != nil {
				return fmt.Errorf("load election transaction %s: %w", electionID, err)
			}

			tx, err := election.NewVote(electionTx, outputIndex, priv, appcrypto.EncodePublicKey(pub))
			if err != nil {
				return err
			}
			if err := broadcastTx(cmd.Context(), rpcAddr, tx); err != nil {
				return err
			}
			fmt.Printf("submitted election vote %s\n", tx.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", "tcp://127.0.0.1:26657", "BFT engine RPC address")
	cmd.Flags().StringVar(&keyPath, "key-path", "./data/node_key.json", "voter's Ed25519 key file")
	cmd.Flags().StringVar(&electionID, "election-id", "", "transaction id of the VALIDATOR_ELECTION being voted on")
	cmd.Flags().IntVar(&outputIndex, "output-index", -1, "index of the voter's own output in the election transaction")
	cmd.MarkFlagRequired("election-id")
	cmd.MarkFlagRequired("output-index")
	return cmd
}

func newElectionShowCommand() *cobra.Command {
	var electionID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print an election's current status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreFromConfig()
			if err != nil {
				return err
			}
			defer store.Close()

			status, err := election.Status(electionID, store)
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	}
	cmd.Flags().StringVar(&electionID, "election-id", "", "transaction id of the VALIDATOR_ELECTION to inspect")
	cmd.MarkFlagRequired("election-id")
	return cmd
}

// latestValidatorHeight resolves the height whose effective validator set a
// new proposal must match: the latest committed block's height, or 0 before
// any block has been committed (the genesis snapshot). GetValidators(height)
// returns the snapshot with the greatest stored height <= height, so this is
// the current set, not the genesis one, once the chain has advanced.
func latestValidatorHeight(store ledger.Store) (uint64, error) {
	block, err := store.GetLatestBlock()
	if err != nil {
		if err == ledger.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return block.Height, nil
}

func openStoreFromConfig() (*storage.PostgresStore, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return storage.NewPostgresStore(storage.PostgresConfig{URL: cfg.DatabaseURL})
}

// broadcastTx encodes tx the same way decodeTx in pkg/abci expects (plain
// JSON) and hands it to the BFT engine's mempool over RPC.
func broadcastTx(ctx context.Context, rpcAddr string, tx *txmodel.Transaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}

	client, err := cmthttp.New(rpcAddr, "/websocket")
	if err != nil {
		return fmt.Errorf("connect to %s: %w", rpcAddr, err)
	}

	res, err := client.BroadcastTxSync(ctx, cmttypes.Tx(raw))
	if err != nil {
		return fmt.Errorf("broadcast tx: %w", err)
	}
	if res.Code != 0 {
		return fmt.Errorf("transaction rejected: %s", res.Log)
	}
	return nil
}
