// Copyright 2025 Certen Protocol
//
package abci

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/storage"
	"github.com/bftledger/node/pkg/txmodel"
)

func TestRecover_DeletesPreCommitAheadOfLatestBlock(t *testing.T) {
	store := storage.NewMemKVStore()

	require.NoError(t, store.StoreBlock(&ledger.Block{Height: 4, AppHash: []byte{0x01}}))
	require.NoError(t, store.StoreTransactions([]*txmodel.Transaction{{ID: "orphan-1"}, {ID: "orphan-2"}}))
	require.NoError(t, store.StorePreCommitState(&ledger.PreCommitRecord{
		CommitID:     ledger.PreCommitID,
		Height:       5,
		Transactions: []string{"orphan-1", "orphan-2"},
	}))

	require.NoError(t, Recover(store, testLogger()))

	_, err := store.GetTransaction("orphan-1")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRecover_NoOpWhenPreCommitNotAheadOfLatestBlock(t *testing.T) {
	store := storage.NewMemKVStore()

	require.NoError(t, store.StoreBlock(&ledger.Block{Height: 3, AppHash: []byte{0x02}}))
	require.NoError(t, store.StorePreCommitState(&ledger.PreCommitRecord{
		CommitID: ledger.PreCommitID,
		Height:   3,
	}))

	require.NoError(t, Recover(store, testLogger()))
}

func TestRecover_NoOpWhenNoPreCommitRecord(t *testing.T) {
	store := storage.NewMemKVStore()
	require.NoError(t, Recover(store, testLogger()))
}
