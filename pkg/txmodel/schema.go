// Copyright 2025 Certen Protocol
//
package txmodel

import "fmt"

// ValidateSchema checks the operation-specific shape of a transaction before
// any semantic (storage-dependent) check runs. It never touches storage.
func ValidateSchema(tx *Transaction) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	if tx.Version == "" {
		return fmt.Errorf("version must not be empty")
	}
	if len(tx.Outputs) == 0 {
		return fmt.Errorf("transaction must have at least one output")
	}
	for i, out := range tx.Outputs {
		if len(out.PublicKeys) == 0 {
			return fmt.Errorf("output %d must have at least one public key", i)
		}
		if !out.ConditionMatches() {
			return fmt.Errorf("output %d condition does not match its public keys", i)
		}
	}
	if len(tx.Inputs) == 0 {
		return fmt.Errorf("transaction must have at least one input")
	}
	for i, in := range tx.Inputs {
		if len(in.OwnersBefore) == 0 {
			return fmt.Errorf("input %d must list owners_before", i)
		}
	}

	switch tx.Operation {
	case OpCreate:
		return validateCreateSchema(tx)
	case OpTransfer:
		return validateTransferSchema(tx)
	case OpValidatorElection:
		return validateElectionSchema(tx)
	case OpValidatorElectionVote:
		return validateVoteSchema(tx)
	default:
		return fmt.Errorf("unknown operation %q", tx.Operation)
	}
}

func validateCreateSchema(tx *Transaction) error {
	for i, in := range tx.Inputs {
		if !in.IsGenesis() {
			return fmt.Errorf("CREATE input %d must not fulfill a prior output", i)
		}
	}
	if tx.Asset == nil || tx.Asset.Data == nil {
		return fmt.Errorf("CREATE transaction requires asset.data")
	}
	if tx.Asset.ID != "" {
		return fmt.Errorf("CREATE transaction must not carry asset.id")
	}
	return nil
}

func validateTransferSchema(tx *Transaction) error {
	for i, in := range tx.Inputs {
		if in.IsGenesis() {
			return fmt.Errorf("TRANSFER input %d must fulfill a prior output", i)
		}
	}
	if tx.Asset == nil || tx.Asset.ID == "" {
		return fmt.Errorf("TRANSFER transaction requires asset.id")
	}
	return nil
}

func validateElectionSchema(tx *Transaction) error {
	for i, in := range tx.Inputs {
		if !in.IsGenesis() {
			return fmt.Errorf("VALIDATOR_ELECTION input %d must not fulfill a prior output", i)
		}
	}
	if tx.Asset == nil || tx.Asset.Data == nil {
		return fmt.Errorf("VALIDATOR_ELECTION transaction requires asset.data")
	}
	if _, ok := tx.Asset.Data["public_key"].(string); !ok {
		return fmt.Errorf("VALIDATOR_ELECTION asset.data requires public_key")
	}
	if _, ok := numberField(tx.Asset.Data, "power"); !ok {
		return fmt.Errorf("VALIDATOR_ELECTION asset.data requires numeric power")
	}
	if _, ok := tx.Asset.Data["node_id"].(string); !ok {
		return fmt.Errorf("VALIDATOR_ELECTION asset.data requires node_id")
	}
	return nil
}

func validateVoteSchema(tx *Transaction) error {
	for i, in := range tx.Inputs {
		if in.IsGenesis() {
			return fmt.Errorf("VALIDATOR_ELECTION_VOTE input %d must fulfill a prior output", i)
		}
	}
	if tx.Asset == nil || tx.Asset.ID == "" {
		return fmt.Errorf("VALIDATOR_ELECTION_VOTE transaction requires asset.id")
	}
	return nil
}

// numberField extracts a numeric field from a decoded JSON map, where
// numbers always decode as float64.
func numberField(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// ElectionPower reads the proposed power from a VALIDATOR_ELECTION asset.
func ElectionPower(tx *Transaction) (int64, bool) {
	if tx.Asset == nil || tx.Asset.Data == nil {
		return 0, false
	}
	f, ok := numberField(tx.Asset.Data, "power")
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// ElectionPublicKey reads the proposed node public key from a
// VALIDATOR_ELECTION asset.
func ElectionPublicKey(tx *Transaction) (string, bool) {
	if tx.Asset == nil || tx.Asset.Data == nil {
		return "", false
	}
	pk, ok := tx.Asset.Data["public_key"].(string)
	return pk, ok
}

// ElectionNodeID reads the proposed node id from a VALIDATOR_ELECTION asset.
func ElectionNodeID(tx *Transaction) (string, bool) {
	if tx.Asset == nil || tx.Asset.Data == nil {
		return "", false
	}
	id, ok := tx.Asset.Data["node_id"].(string)
	return id, ok
}
