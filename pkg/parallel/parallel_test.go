// Copyright 2025 Certen Protocol
//
package parallel

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftledger/node/pkg/crypto"
	"github.com/bftledger/node/pkg/storage"
	"github.com/bftledger/node/pkg/txmodel"
)

func genKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv, crypto.EncodePublicKey(pub)
}

func signAndID(t *testing.T, tx *txmodel.Transaction, priv ed25519.PrivateKey) {
	t.Helper()
	msg, err := tx.CanonicalBytesForInput(0)
	require.NoError(t, err)
	tx.Inputs[0].Fulfillment = crypto.SignFulfillment(priv, msg)
	id, err := tx.DeriveID()
	require.NoError(t, err)
	tx.ID = id
}

func buildCreate(t *testing.T, priv ed25519.PrivateKey, pub string, amount uint64) *txmodel.Transaction {
	tx := &txmodel.Transaction{
		Version:   txmodel.Version,
		Operation: txmodel.OpCreate,
		Inputs:    []txmodel.Input{{OwnersBefore: []string{pub}}},
		Outputs:   []txmodel.Output{txmodel.NewOutput(amount, []string{pub})},
		Asset:     &txmodel.Asset{Data: map[string]interface{}{"name": "widget"}},
	}
	signAndID(t, tx, priv)
	return tx
}

func buildTransfer(t *testing.T, from *txmodel.Transaction, priv ed25519.PrivateKey, fromPub, toPub string, amount uint64) *txmodel.Transaction {
	idx := 0
	tx := &txmodel.Transaction{
		Version:   txmodel.Version,
		Operation: txmodel.OpTransfer,
		Inputs: []txmodel.Input{{
			FulfillsTxID:        from.ID,
			FulfillsOutputIndex: &idx,
			OwnersBefore:        []string{fromPub},
		}},
		Outputs: []txmodel.Output{txmodel.NewOutput(amount, []string{toPub})},
		Asset:   &txmodel.Asset{ID: from.AssetID()},
	}
	signAndID(t, tx, priv)
	return tx
}

// TestCausalChainInOneBlock mirrors spec scenario 1: a create, a transfer
// spending it, and a double-spend of the same output, all in one round on a
// single worker so the causal context resolves deterministically.
func TestCausalChainInOneBlock(t *testing.T) {
	store := storage.NewMemKVStore()
	c := NewWithWorkers(store, 1)
	defer c.Stop()

	priv, pub := genKey(t)
	_, toPub := genKey(t)
	_, otherPub := genKey(t)

	create := buildCreate(t, priv, pub, 10)
	transfer := buildTransfer(t, create, priv, pub, toPub, 10)
	doubleSpend := buildTransfer(t, create, priv, pub, otherPub, 10)

	_, err := c.Submit(create)
	require.NoError(t, err)
	_, err = c.Submit(transfer)
	require.NoError(t, err)
	_, err = c.Submit(doubleSpend)
	require.NoError(t, err)

	results, err := c.Harvest(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.NotNil(t, results[0])
	require.Equal(t, create.ID, results[0].ID)
	require.NotNil(t, results[1])
	require.Equal(t, transfer.ID, results[1].ID)
	require.Nil(t, results[2])
}

// TestResetBetweenRounds mirrors spec scenario 2: after harvesting, worker
// context is cleared, so resubmitting the same pair succeeds again.
func TestResetBetweenRounds(t *testing.T) {
	store := storage.NewMemKVStore()
	c := NewWithWorkers(store, 1)
	defer c.Stop()

	priv, pub := genKey(t)
	_, toPub := genKey(t)

	create := buildCreate(t, priv, pub, 10)
	transfer := buildTransfer(t, create, priv, pub, toPub, 10)

	_, err := c.Submit(create)
	require.NoError(t, err)
	_, err = c.Submit(transfer)
	require.NoError(t, err)
	first, err := c.Harvest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first[0])
	require.NotNil(t, first[1])

	_, err = c.Submit(create)
	require.NoError(t, err)
	_, err = c.Submit(transfer)
	require.NoError(t, err)
	second, err := c.Harvest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, second[0])
	require.NotNil(t, second[1])
}

// TestEvenRouting mirrors spec scenario 3: with W=2 and ids "0".."3", each
// worker handles exactly two.
func TestEvenRouting(t *testing.T) {
	store := storage.NewMemKVStore()
	c := NewWithWorkers(store, 2)
	defer c.Stop()

	counts := map[int]int{}
	for _, id := range []string{"0", "1", "2", "3"} {
		idx, err := c.workerIndex(&txmodel.Transaction{ID: id, Operation: txmodel.OpCreate})
		require.NoError(t, err)
		counts[idx]++
	}
	require.Equal(t, 2, counts[0])
	require.Equal(t, 2, counts[1])
}

func TestHarvestTimeout(t *testing.T) {
	store := storage.NewMemKVStore()
	c := NewWithWorkers(store, 1)
	defer c.Stop()
	c.SetHarvestTimeout(1)

	priv, pub := genKey(t)
	create := buildCreate(t, priv, pub, 10)
	_, err := c.Submit(create)
	require.NoError(t, err)

	_, err = c.Harvest(context.Background())
	require.Error(t, err)
}
