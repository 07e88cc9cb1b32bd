// Copyright 2025 Certen Protocol
//
package txmodel

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// DeriveCondition computes the deterministic condition string for a set of
// recipient public keys. It does not carry cryptographic meaning beyond
// determinism: two outputs with the same key set (in any order) always
// produce the same condition, so reordering an output's public_keys slice
// does not change it.
func DeriveCondition(publicKeys []string) string {
	joined := strings.Join(sortedKeys(publicKeys), "|")
	sum := sha3.Sum256([]byte(joined))
	return "ed25519-sha3:" + hex.EncodeToString(sum[:])
}

// NewOutput builds an Output with its condition derived from publicKeys.
func NewOutput(amount uint64, publicKeys []string) Output {
	return Output{
		Amount:     amount,
		PublicKeys: append([]string(nil), publicKeys...),
		Condition:  DeriveCondition(publicKeys),
	}
}

// ConditionMatches reports whether the output's stored condition is
// consistent with its own public_keys (guards against a tampered output
// where public_keys was edited but condition was not recomputed).
func (o *Output) ConditionMatches() bool {
	return o.Condition == DeriveCondition(o.PublicKeys)
}

func hexLower(b []byte) string {
	return hex.EncodeToString(b)
}
