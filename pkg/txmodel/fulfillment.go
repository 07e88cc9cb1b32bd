// Copyright 2025 Certen Protocol
//
package txmodel

import (
	"fmt"

	"github.com/bftledger/node/pkg/crypto"
)

// VerifyFulfillments checks every input's fulfillment against its own
// owners_before and the transaction's per-input canonical message. It does
// not resolve whether the referenced output actually exists or is unspent;
// that is the validation engine's job (spec §4.C step 4).
func VerifyFulfillments(tx *Transaction) error {
	for i, in := range tx.Inputs {
		msg, err := tx.CanonicalBytesForInput(i)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if !crypto.VerifyFulfillment(in.OwnersBefore, in.Fulfillment, msg) {
			return fmt.Errorf("input %d: fulfillment does not verify", i)
		}
	}
	return nil
}
