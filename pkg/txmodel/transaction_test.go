// Copyright 2025 Certen Protocol
//
package txmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTx() *Transaction {
	return &Transaction{
		Version:   Version,
		Operation: OpCreate,
		Inputs:    []Input{{OwnersBefore: []string{"pub1"}, Fulfillment: "sig1"}},
		Outputs:   []Output{NewOutput(100, []string{"pub1"})},
		Asset:     &Asset{Data: map[string]interface{}{"name": "widget", "color": "red"}},
	}
}

func TestDeriveIDIsDeterministic(t *testing.T) {
	tx := sampleTx()
	id1, err := tx.DeriveID()
	require.NoError(t, err)
	id2, err := tx.DeriveID()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestDeriveIDIgnoresExistingID(t *testing.T) {
	tx := sampleTx()
	id, err := tx.DeriveID()
	require.NoError(t, err)

	tx.ID = "stale-id-from-a-previous-round"
	idAfter, err := tx.DeriveID()
	require.NoError(t, err)
	require.Equal(t, id, idAfter)
}

func TestVerifyID(t *testing.T) {
	tx := sampleTx()
	id, err := tx.DeriveID()
	require.NoError(t, err)
	tx.ID = id

	ok, err := tx.VerifyID()
	require.NoError(t, err)
	require.True(t, ok)

	tx.Outputs[0].Amount = 999
	ok, err = tx.VerifyID()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanonicalBytesForInputClearsOnlyThatInputsFulfillment(t *testing.T) {
	tx := sampleTx()
	tx.Inputs = append(tx.Inputs, Input{OwnersBefore: []string{"pub2"}, Fulfillment: "sig2"})

	msg0, err := tx.CanonicalBytesForInput(0)
	require.NoError(t, err)
	require.NotContains(t, string(msg0), "sig1")
	require.Contains(t, string(msg0), "sig2")

	msg1, err := tx.CanonicalBytesForInput(1)
	require.NoError(t, err)
	require.Contains(t, string(msg1), "sig1")
	require.NotContains(t, string(msg1), "sig2")
}

func TestCanonicalBytesForInputOutOfRange(t *testing.T) {
	tx := sampleTx()
	_, err := tx.CanonicalBytesForInput(5)
	require.Error(t, err)
}

func TestAssetID(t *testing.T) {
	create := sampleTx()
	create.ID = "create-id"
	require.Equal(t, "create-id", create.AssetID())

	transfer := &Transaction{Operation: OpTransfer, Asset: &Asset{ID: "create-id"}}
	require.Equal(t, "create-id", transfer.AssetID())

	election := &Transaction{Operation: OpValidatorElection, ID: "election-id"}
	require.Equal(t, "election-id", election.AssetID())
}

func TestDeriveConditionIsOrderIndependent(t *testing.T) {
	a := DeriveCondition([]string{"pub1", "pub2"})
	b := DeriveCondition([]string{"pub2", "pub1"})
	require.Equal(t, a, b)
}

func TestOutputConditionMatches(t *testing.T) {
	out := NewOutput(50, []string{"pub1", "pub2"})
	require.True(t, out.ConditionMatches())

	out.PublicKeys = []string{"pub1", "pub3"}
	require.False(t, out.ConditionMatches())
}

func TestIsGenesis(t *testing.T) {
	genesis := Input{OwnersBefore: []string{"pub1"}}
	require.True(t, genesis.IsGenesis())

	spend := Input{FulfillsTxID: "some-tx", OwnersBefore: []string{"pub1"}}
	require.False(t, spend.IsGenesis())
}
