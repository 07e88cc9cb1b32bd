// Copyright 2025 Certen Protocol
//
// Package txmodel defines the canonical transaction structure shared by the
// validation engine, the parallel validator, and the election subsystem.
package txmodel

import (
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/crypto/sha3"
)

// Operation identifies the kind of state transition a transaction performs.
type Operation string

const (
	OpCreate                Operation = "CREATE"
	OpTransfer              Operation = "TRANSFER"
	OpValidatorElection     Operation = "VALIDATOR_ELECTION"
	OpValidatorElectionVote Operation = "VALIDATOR_ELECTION_VOTE"
)

// Version is the transaction schema version emitted by this node.
const Version = "2.0"

// Input references a prior output (or, for CREATE, carries a self-signature
// over the transaction by the creators) plus the fulfillment that unlocks it.
type Input struct {
	FulfillsTxID        string   `json:"fulfills_tx_id,omitempty"`
	FulfillsOutputIndex *int     `json:"fulfills_output_index,omitempty"`
	OwnersBefore        []string `json:"owners_before"`
	Fulfillment         string   `json:"fulfillment,omitempty"`
}

// IsGenesis reports whether this input spends a prior output at all.
func (in *Input) IsGenesis() bool {
	return in.FulfillsTxID == ""
}

// Output carries an amount, the set of recipient public keys, and a
// condition derived deterministically from those keys.
type Output struct {
	Amount     uint64   `json:"amount"`
	PublicKeys []string `json:"public_keys"`
	Condition  string   `json:"condition"`
}

// Asset is either origination data (CREATE-like operations) or a pointer to
// the CREATE transaction that defines the asset (follow-ups).
type Asset struct {
	Data map[string]interface{} `json:"data,omitempty"`
	ID   string                 `json:"id,omitempty"`
}

// Transaction is the immutable, content-addressed unit of the ledger.
type Transaction struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Operation Operation              `json:"operation"`
	Inputs    []Input                `json:"inputs"`
	Outputs   []Output               `json:"outputs"`
	Asset     *Asset                 `json:"asset,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AssetID returns the grouping key used for amount-conservation and
// context-map lookups: the transaction's own id for CREATE/ELECTION, or
// asset.id for TRANSFER/VOTE.
func (t *Transaction) AssetID() string {
	switch t.Operation {
	case OpCreate, OpValidatorElection:
		return t.ID
	default:
		if t.Asset != nil {
			return t.Asset.ID
		}
		return ""
	}
}

// Input amounts are not summed in this package: that needs each input
// resolved to its referenced output, which the validation engine does
// because txmodel has no storage dependency.

// canonicalMap round-trips the transaction through encoding/json so that
// struct field order is irrelevant and nested objects serialize with sorted
// map keys: Go's json package sorts map[string]any keys on Marshal, which is
// enough to make this deterministic without a bespoke canonical encoder.
func (t *Transaction) canonicalMap() (map[string]interface{}, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return m, nil
}

// CanonicalBytes returns the canonical serialization used for id derivation
// and fulfillment messages, with the id field cleared.
func (t *Transaction) CanonicalBytes() ([]byte, error) {
	m, err := t.canonicalMap()
	if err != nil {
		return nil, err
	}
	m["id"] = nil
	return marshalSorted(m)
}

// CanonicalBytesForInput returns the canonical serialization used to verify
// the fulfillment of inputs[index]: id cleared, and that input's own
// fulfillment field cleared (per spec: "rebuilds the message with id cleared
// and with the input's own fulfillment field cleared").
func (t *Transaction) CanonicalBytesForInput(index int) ([]byte, error) {
	if index < 0 || index >= len(t.Inputs) {
		return nil, fmt.Errorf("input index %d out of range", index)
	}
	m, err := t.canonicalMap()
	if err != nil {
		return nil, err
	}
	m["id"] = nil
	inputs, ok := m["inputs"].([]interface{})
	if !ok || index >= len(inputs) {
		return nil, fmt.Errorf("canonical map missing input %d", index)
	}
	inputMap, ok := inputs[index].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("canonical map input %d not an object", index)
	}
	inputMap["fulfillment"] = nil
	return marshalSorted(m)
}

// DeriveID computes the canonical id: lowercase hex SHA3-256 of the
// canonical serialization with id cleared.
func (t *Transaction) DeriveID() (string, error) {
	b, err := t.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(b)
	return hexLower(sum[:]), nil
}

// VerifyID reports whether the stored id matches the recomputed hash.
func (t *Transaction) VerifyID() (bool, error) {
	id, err := t.DeriveID()
	if err != nil {
		return false, err
	}
	return id == t.ID, nil
}

// marshalSorted marshals a map[string]interface{} tree. encoding/json
// already sorts map keys lexicographically, and nested maps decoded from
// JSON are themselves map[string]interface{}, so a single Marshal call is
// sufficient for canonical key ordering at every depth.
func marshalSorted(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// sortedKeys is used by callers that need deterministic iteration order over
// a map (e.g. building condition strings from a set of public keys).
func sortedKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)
	return out
}
