// Copyright 2025 Certen Protocol
//
package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/txmodel"
)

func newTestStore(t *testing.T) *KVStore {
	t.Helper()
	return NewMemKVStore()
}

func sampleTx(id, assetID string, publicKey string) *txmodel.Transaction {
	return &txmodel.Transaction{
		ID:        id,
		Version:   txmodel.Version,
		Operation: txmodel.OpCreate,
		Inputs:    []txmodel.Input{{OwnersBefore: []string{publicKey}}},
		Outputs:   []txmodel.Output{txmodel.NewOutput(100, []string{publicKey})},
		Asset:     &txmodel.Asset{Data: map[string]interface{}{"name": "widget"}, ID: assetID},
	}
}

func TestKVStore_TransactionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	tx := sampleTx("tx1", "", "pk1")

	require.NoError(t, store.StoreTransactions([]*txmodel.Transaction{tx}))

	got, err := store.GetTransaction("tx1")
	require.NoError(t, err)
	require.Equal(t, tx.ID, got.ID)
	require.Equal(t, tx.Outputs[0].Amount, got.Outputs[0].Amount)

	_, err = store.GetTransaction("missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestKVStore_DeleteTransactions(t *testing.T) {
	store := newTestStore(t)
	tx := sampleTx("tx1", "", "pk1")
	require.NoError(t, store.StoreTransactions([]*txmodel.Transaction{tx}))
	require.NoError(t, store.DeleteTransactions([]string{"tx1"}))

	_, err := store.GetTransaction("tx1")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestKVStore_BlockLookups(t *testing.T) {
	store := newTestStore(t)
	block := &ledger.Block{Height: 5, AppHash: []byte{1, 2, 3}, Transactions: []string{"tx1", "tx2"}}
	require.NoError(t, store.StoreBlock(block))

	latest, err := store.GetLatestBlock()
	require.NoError(t, err)
	require.Equal(t, uint64(5), latest.Height)

	height, found, err := store.GetBlockContainingTx("tx2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(5), height)

	_, found, err = store.GetBlockContainingTx("tx-unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestKVStore_PreCommitState(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetPreCommitState()
	require.ErrorIs(t, err, ledger.ErrNotFound)

	record := &ledger.PreCommitRecord{Height: 9, Transactions: []string{"a", "b"}}
	require.NoError(t, store.StorePreCommitState(record))

	got, err := store.GetPreCommitState()
	require.NoError(t, err)
	require.Equal(t, ledger.PreCommitID, got.CommitID)
	require.Equal(t, uint64(9), got.Height)
}

func TestKVStore_ValidatorSetByHeightIsMostRecentAtOrBelow(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.StoreValidatorSet(1, []ledger.Validator{{PublicKey: "v1", VotingPower: 10}}, "e1"))
	require.NoError(t, store.StoreValidatorSet(10, []ledger.Validator{{PublicKey: "v2", VotingPower: 20}}, "e2"))

	vs, err := store.GetValidators(5)
	require.NoError(t, err)
	require.Equal(t, uint64(1), vs.Height)

	vs, err = store.GetValidators(10)
	require.NoError(t, err)
	require.Equal(t, uint64(10), vs.Height)

	vs, err = store.GetValidators(100)
	require.NoError(t, err)
	require.Equal(t, uint64(10), vs.Height)

	_, err = store.GetValidators(0)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestKVStore_ValidatorSetByElectionID(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.StoreValidatorSet(3, []ledger.Validator{{PublicKey: "v1", VotingPower: 10}}, "election-xyz"))

	vs, err := store.GetValidatorsByElectionID("election-xyz")
	require.NoError(t, err)
	require.Equal(t, uint64(3), vs.Height)

	_, err = store.GetValidatorsByElectionID("does-not-exist")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestKVStore_AssetTokensForPublicKey(t *testing.T) {
	store := newTestStore(t)
	create := sampleTx("create1", "", "pk1")
	create.ID = "create1"
	require.NoError(t, store.StoreTransactions([]*txmodel.Transaction{create}))

	transfer := &txmodel.Transaction{
		ID:        "transfer1",
		Version:   txmodel.Version,
		Operation: txmodel.OpTransfer,
		Inputs:    []txmodel.Input{{FulfillsTxID: "create1", OwnersBefore: []string{"pk1"}}},
		Outputs:   []txmodel.Output{txmodel.NewOutput(100, []string{"pk2"})},
		Asset:     &txmodel.Asset{ID: "create1"},
	}
	require.NoError(t, store.StoreTransactions([]*txmodel.Transaction{transfer}))

	tokens, err := store.GetAssetTokensForPublicKey("create1", "pk2")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.Equal(t, "transfer1", tokens[0].TxID)
	require.Equal(t, uint64(100), tokens[0].Amount)

	tokens, err = store.GetAssetTokensForPublicKey("create1", "pk-unseen")
	require.NoError(t, err)
	require.Empty(t, tokens)

	all, err := store.GetTransactionsForAsset("create1")
	require.NoError(t, err)
	require.Len(t, all, 2)
}
