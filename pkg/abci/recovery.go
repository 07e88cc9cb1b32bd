// Copyright 2025 Certen Protocol
//
package abci

import (
	"fmt"
	"log"

	"github.com/bftledger/node/pkg/ledger"
)

// Recover reconciles the pre-commit intent record against the latest
// committed block after an unclean shutdown (spec §4.F).
//
//   - no pre-commit record: nothing to do.
//   - pre-commit.height > latest_block.height: the node crashed between
//     end_block and commit. The BFT engine will re-deliver the block, so
//     the transactions written as part of that pre-commit are deleted to
//     avoid duplicate-id validation failures on replay.
//   - otherwise: consistent, no action.
func Recover(store ledger.Store, logger *log.Logger) error {
	pre, err := store.GetPreCommitState()
	if err != nil {
		if err == ledger.ErrNotFound {
			logger.Printf("recovery: no pre-commit record, nothing to reconcile")
			return nil
		}
		return fmt.Errorf("recovery: load pre-commit state: %w", err)
	}

	var latestHeight uint64
	latest, err := store.GetLatestBlock()
	if err != nil {
		if err != ledger.ErrNotFound {
			return fmt.Errorf("recovery: load latest block: %w", err)
		}
	} else {
		latestHeight = latest.Height
	}

	if pre.Height > latestHeight {
		logger.Printf("recovery: pre-commit height %d exceeds latest committed height %d; deleting %d pre-commit transactions for replay",
			pre.Height, latestHeight, len(pre.Transactions))
		if err := store.DeleteTransactions(pre.Transactions); err != nil {
			return fmt.Errorf("recovery: delete pre-commit transactions: %w", err)
		}
		return nil
	}

	logger.Printf("recovery: pre-commit height %d <= latest committed height %d, state is consistent", pre.Height, latestHeight)
	return nil
}
