// Copyright 2025 Certen Protocol
//
package ledgerd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bftledger/node/pkg/config"
	appcrypto "github.com/bftledger/node/pkg/crypto"
	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/storage"
	"github.com/bftledger/node/pkg/validation"
)

func newInitCommand() *cobra.Command {
	var power int64

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the schema and a single-validator genesis set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			if _, err := os.Stat(cfg.Ed25519KeyPath); err == nil {
				return &validation.Error{Kind: validation.KindDatabaseAlreadyExists,
					Message: fmt.Sprintf("key file %s already exists; refusing to re-init", cfg.Ed25519KeyPath)}
			}
			pub, _, err := appcrypto.GenerateKeyFile(cfg.Ed25519KeyPath)
			if err != nil {
				return err
			}

			store, err := storage.NewPostgresStore(storage.PostgresConfig{URL: cfg.DatabaseURL})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.MigrateUp(context.Background()); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}

			genesis := []ledger.Validator{{PublicKey: appcrypto.EncodePublicKey(pub), VotingPower: power}}
			if err := store.StoreValidatorSet(0, genesis, ""); err != nil {
				return fmt.Errorf("store genesis validator set: %w", err)
			}

			fmt.Printf("initialized schema and genesis validator %s (power=%d)\n", genesis[0].PublicKey, power)
			return nil
		},
	}
	cmd.Flags().Int64Var(&power, "power", 10, "genesis voting power for this node")
	return cmd
}
