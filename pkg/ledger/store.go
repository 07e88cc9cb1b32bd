// Copyright 2025 Certen Protocol
//
package ledger

import "github.com/bftledger/node/pkg/txmodel"

// Store is the narrow, document-oriented storage surface the core composes
// against (spec §4.A). Implementations are expected to serve point queries
// or small scans; the core itself supplies any cross-call ordering it
// needs and assumes no transactional guarantees across operations.
type Store interface {
	GetTransaction(id string) (*txmodel.Transaction, error)
	StoreTransactions(batch []*txmodel.Transaction) error
	DeleteTransactions(ids []string) error

	GetLatestBlock() (*Block, error)
	StoreBlock(block *Block) error
	GetBlockContainingTx(id string) (height uint64, found bool, err error)

	GetPreCommitState() (*PreCommitRecord, error)
	StorePreCommitState(record *PreCommitRecord) error

	GetValidators(height uint64) (*ValidatorSet, error)
	StoreValidatorSet(height uint64, set []Validator, electionID string) error
	GetValidatorsByElectionID(electionID string) (*ValidatorSet, error)

	GetAssetTokensForPublicKey(assetID, publicKey string) ([]AssetToken, error)

	// GetTransactionsForAsset returns every committed transaction sharing
	// the given asset id, in no particular order. The validation engine
	// uses it to find the spender (if any) of a specific prior output,
	// since the narrow per-owner token index alone cannot answer that.
	GetTransactionsForAsset(assetID string) ([]*txmodel.Transaction, error)
}
