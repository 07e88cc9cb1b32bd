// Copyright 2025 Certen Protocol
//
package ledger

import "errors"

// ErrNotFound is returned by Store lookups that find nothing. Callers use
// errors.Is to distinguish "absent" from a genuine storage failure.
var ErrNotFound = errors.New("ledger: not found")
