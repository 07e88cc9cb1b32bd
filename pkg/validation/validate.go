// Copyright 2025 Certen Protocol
//
// Package validation implements the single-transaction validation engine
// (spec §4.C): a pure function of a transaction, a storage snapshot, and the
// same-asset transactions already accepted earlier in the current block.
package validation

import (
	"errors"
	"fmt"

	"github.com/bftledger/node/pkg/election"
	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/txmodel"
)

// Validate runs the seven ordered checks against tx and returns it unchanged
// on success. context holds the transactions of tx's own asset id already
// accepted earlier in the current block (the worker's per-asset context, per
// §4.D); validators is the validator set effective for the block being
// built, consulted only for VALIDATOR_ELECTION transactions.
func Validate(tx *txmodel.Transaction, store ledger.Store, context []*txmodel.Transaction, validators *ledger.ValidatorSet) (*txmodel.Transaction, error) {
	if err := txmodel.ValidateSchema(tx); err != nil {
		return nil, newError(KindSchemaError, "%v", err)
	}

	ok, err := tx.VerifyID()
	if err != nil {
		return nil, newError(KindSchemaError, "derive id: %v", err)
	}
	if !ok {
		return nil, newError(KindSchemaError, "id does not match canonical hash")
	}

	if err := checkNotDuplicate(tx, store, context); err != nil {
		return nil, err
	}

	if err := checkInputsResolveAndUnspent(tx, store, context); err != nil {
		return nil, err
	}

	if err := txmodel.VerifyFulfillments(tx); err != nil {
		return nil, newError(KindInvalidSignature, "%v", err)
	}

	if err := checkAmountConservation(tx, store, context); err != nil {
		return nil, err
	}

	if tx.Operation == txmodel.OpValidatorElection {
		if validators == nil {
			return nil, newError(KindInvalidProposer, "no validator set available to evaluate election proposal")
		}
		if err := election.ValidateProposal(tx, validators); err != nil {
			return nil, translateElectionError(err)
		}
	}

	return tx, nil
}

func translateElectionError(err error) error {
	var ee *election.ProposalError
	if errors.As(err, &ee) {
		return newError(Kind(ee.Kind), "%s", ee.Message)
	}
	return newError(KindInvalidProposer, "%v", err)
}

func checkNotDuplicate(tx *txmodel.Transaction, store ledger.Store, context []*txmodel.Transaction) error {
	for _, c := range context {
		if c.ID == tx.ID {
			return newError(KindDuplicateTransaction, "transaction %s already accepted earlier in this block", tx.ID)
		}
	}
	existing, err := store.GetTransaction(tx.ID)
	if err != nil && err != ledger.ErrNotFound {
		return fmt.Errorf("lookup transaction %s: %w", tx.ID, err)
	}
	if existing != nil {
		return newError(KindDuplicateTransaction, "transaction %s already committed", tx.ID)
	}
	return nil
}

// resolveOutput finds the transaction and output an input references,
// looking first in the in-block context (same-asset transactions accepted
// earlier this block) and falling back to committed storage.
func resolveOutput(in txmodel.Input, store ledger.Store, context []*txmodel.Transaction) (*txmodel.Transaction, *txmodel.Output, error) {
	for _, c := range context {
		if c.ID == in.FulfillsTxID {
			idx, err := outputIndex(in)
			if err != nil {
				return nil, nil, err
			}
			if idx < 0 || idx >= len(c.Outputs) {
				return nil, nil, fmt.Errorf("output index %d out of range for tx %s", idx, c.ID)
			}
			return c, &c.Outputs[idx], nil
		}
	}
	ancestor, err := store.GetTransaction(in.FulfillsTxID)
	if err != nil {
		if err == ledger.ErrNotFound {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("lookup ancestor %s: %w", in.FulfillsTxID, err)
	}
	idx, err := outputIndex(in)
	if err != nil {
		return nil, nil, err
	}
	if idx < 0 || idx >= len(ancestor.Outputs) {
		return nil, nil, fmt.Errorf("output index %d out of range for tx %s", idx, ancestor.ID)
	}
	return ancestor, &ancestor.Outputs[idx], nil
}

func outputIndex(in txmodel.Input) (int, error) {
	if in.FulfillsOutputIndex == nil {
		return 0, fmt.Errorf("input fulfilling %s is missing its output index", in.FulfillsTxID)
	}
	return *in.FulfillsOutputIndex, nil
}

func checkInputsResolveAndUnspent(tx *txmodel.Transaction, store ledger.Store, context []*txmodel.Transaction) error {
	for i, in := range tx.Inputs {
		if in.IsGenesis() {
			continue
		}
		ancestor, _, err := resolveOutput(in, store, context)
		if err != nil {
			return fmt.Errorf("resolve input %d: %w", i, err)
		}
		if ancestor == nil {
			return newError(KindDoubleSpend, "input %d references unknown transaction %s", i, in.FulfillsTxID)
		}

		spentInContext := spendsOutput(context, in)
		spentInStorage, err := spentAmongCommitted(tx.AssetID(), in, tx.ID, store)
		if err != nil {
			return fmt.Errorf("check spent state for input %d: %w", i, err)
		}
		if spentInContext || spentInStorage {
			return newError(KindDoubleSpend, "input %d double-spends %s:%d", i, in.FulfillsTxID, *in.FulfillsOutputIndex)
		}
	}
	return nil
}

func spendsOutput(txs []*txmodel.Transaction, target txmodel.Input) bool {
	for _, t := range txs {
		for _, in := range t.Inputs {
			if in.IsGenesis() {
				continue
			}
			if in.FulfillsTxID == target.FulfillsTxID && sameIndex(in, target) {
				return true
			}
		}
	}
	return false
}

func sameIndex(a, b txmodel.Input) bool {
	if a.FulfillsOutputIndex == nil || b.FulfillsOutputIndex == nil {
		return false
	}
	return *a.FulfillsOutputIndex == *b.FulfillsOutputIndex
}

func spentAmongCommitted(assetID string, in txmodel.Input, ownID string, store ledger.Store) (bool, error) {
	committed, err := store.GetTransactionsForAsset(assetID)
	if err != nil {
		return false, err
	}
	for _, t := range committed {
		if t.ID == ownID {
			continue
		}
		for _, other := range t.Inputs {
			if other.IsGenesis() {
				continue
			}
			if other.FulfillsTxID == in.FulfillsTxID && sameIndex(other, in) {
				return true, nil
			}
		}
	}
	return false, nil
}

func checkAmountConservation(tx *txmodel.Transaction, store ledger.Store, context []*txmodel.Transaction) error {
	if tx.Operation == txmodel.OpCreate || tx.Operation == txmodel.OpValidatorElection {
		return nil
	}

	var inputTotal uint64
	for i, in := range tx.Inputs {
		if in.IsGenesis() {
			continue
		}
		_, out, err := resolveOutput(in, store, context)
		if err != nil {
			return fmt.Errorf("resolve input %d for amount check: %w", i, err)
		}
		if out == nil {
			return newError(KindDoubleSpend, "input %d references unknown output", i)
		}
		inputTotal += out.Amount
	}

	var outputTotal uint64
	for _, out := range tx.Outputs {
		outputTotal += out.Amount
	}

	if inputTotal != outputTotal {
		return newError(KindAmountMismatch, "input total %d does not equal output total %d", inputTotal, outputTotal)
	}
	return nil
}
