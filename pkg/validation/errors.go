// Copyright 2025 Certen Protocol
//
package validation

import (
	"errors"
	"fmt"
)

// Kind classifies why a transaction was rejected, mirroring the structural
// error taxonomy the ABCI handler and election CLI both report against.
type Kind string

const (
	KindSchemaError           Kind = "SchemaError"
	KindInvalidSignature      Kind = "InvalidSignature"
	KindDoubleSpend           Kind = "DoubleSpend"
	KindAmountMismatch        Kind = "AmountMismatch"
	KindDuplicateTransaction  Kind = "DuplicateTransaction"
	KindInvalidProposer       Kind = "InvalidProposer"
	KindMultipleInputsError   Kind = "MultipleInputsError"
	KindUnequalValidatorSet   Kind = "UnequalValidatorSet"
	KindInvalidPowerChange    Kind = "InvalidPowerChange"
	KindDatabaseAlreadyExists Kind = "DatabaseAlreadyExists"
	KindDatabaseDoesNotExist  Kind = "DatabaseDoesNotExist"
)

// Error is a rejection with a named kind, never propagated across a worker
// boundary as a panic or exception: the parallel validator absorbs it and
// records a falsy slot instead (spec §7).
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var ve *Error
	if !errors.As(err, &ve) {
		return "", false
	}
	return ve.Kind, true
}
