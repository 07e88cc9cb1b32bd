// Copyright 2025 Certen Protocol
//
package election

import (
	"crypto/ed25519"
	"fmt"

	"github.com/bftledger/node/pkg/crypto"
	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/txmodel"
)

// NewProposal builds, signs, and ids a VALIDATOR_ELECTION transaction
// proposing a power change for nodeID/proposedPublicKey, with the voter
// topology output set drawn from the current validator set. The caller is
// the sole initiator and must already hold initiatorPub as a current
// validator (checked at validation time, not here).
func NewProposal(validators []ledger.Validator, initiatorPriv ed25519.PrivateKey, initiatorPub string, proposedPublicKey, nodeID string, power int64) (*txmodel.Transaction, error) {
	outputs := make([]txmodel.Output, len(validators))
	for i, v := range validators {
		outputs[i] = txmodel.NewOutput(uint64(v.VotingPower), []string{v.PublicKey})
	}

	tx := &txmodel.Transaction{
		Version:   txmodel.Version,
		Operation: txmodel.OpValidatorElection,
		Inputs: []txmodel.Input{{
			OwnersBefore: []string{initiatorPub},
		}},
		Outputs: outputs,
		Asset: &txmodel.Asset{
			Data: map[string]interface{}{
				"public_key": proposedPublicKey,
				"power":      float64(power),
				"node_id":    nodeID,
			},
		},
	}
	return signAndID(tx, 0, initiatorPriv)
}

// NewVote builds, signs, and ids a VALIDATOR_ELECTION_VOTE transaction that
// transfers the voter's election output entirely to the election's
// deterministic public key.
func NewVote(electionTx *txmodel.Transaction, outputIndex int, voterPriv ed25519.PrivateKey, voterPub string) (*txmodel.Transaction, error) {
	if outputIndex < 0 || outputIndex >= len(electionTx.Outputs) {
		return nil, fmt.Errorf("output index %d out of range", outputIndex)
	}
	out := electionTx.Outputs[outputIndex]

	electionPK, err := PublicKey(electionTx.ID)
	if err != nil {
		return nil, fmt.Errorf("derive election public key: %w", err)
	}

	idx := outputIndex
	tx := &txmodel.Transaction{
		Version:   txmodel.Version,
		Operation: txmodel.OpValidatorElectionVote,
		Inputs: []txmodel.Input{{
			FulfillsTxID:        electionTx.ID,
			FulfillsOutputIndex: &idx,
			OwnersBefore:        []string{voterPub},
		}},
		Outputs: []txmodel.Output{txmodel.NewOutput(out.Amount, []string{electionPK})},
		Asset:   &txmodel.Asset{ID: electionTx.ID},
	}
	return signAndID(tx, 0, voterPriv)
}

func signAndID(tx *txmodel.Transaction, inputIndex int, priv ed25519.PrivateKey) (*txmodel.Transaction, error) {
	msg, err := tx.CanonicalBytesForInput(inputIndex)
	if err != nil {
		return nil, fmt.Errorf("build signing message: %w", err)
	}
	tx.Inputs[inputIndex].Fulfillment = crypto.SignFulfillment(priv, msg)

	id, err := tx.DeriveID()
	if err != nil {
		return nil, fmt.Errorf("derive id: %w", err)
	}
	tx.ID = id
	return tx, nil
}
