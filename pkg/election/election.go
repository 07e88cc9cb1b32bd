// Copyright 2025 Certen Protocol
//
// Package election implements the validator-set election protocol (spec
// §4.E): constructing and validating VALIDATOR_ELECTION proposals, counting
// votes, detecting conclusion under the 2/3 supermajority rule, and
// deriving the resulting validator-set delta.
package election

import (
	"fmt"

	"github.com/bftledger/node/pkg/crypto"
	"github.com/bftledger/node/pkg/ledger"
	"github.com/bftledger/node/pkg/txmodel"
)

// ProposalError names the specific invariant an election proposal violated,
// using the same Kind vocabulary the validation engine's errors use. It is
// defined independently (rather than importing pkg/validation) so the
// dependency runs validation -> election and never the other way.
type ProposalError struct {
	Kind    string
	Message string
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newProposalError(kind, format string, args ...interface{}) *ProposalError {
	return &ProposalError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// PublicKey derives the deterministic election public key that every vote
// on this election must target: base58(hex_decode(electionID)).
func PublicKey(electionID string) (string, error) {
	return crypto.ElectionPublicKey(electionID)
}

// ValidateProposal checks the VALIDATOR_ELECTION-specific rules beyond the
// generic schema/signature/amount checks the validation engine already ran.
func ValidateProposal(tx *txmodel.Transaction, validators *ledger.ValidatorSet) error {
	if len(tx.Inputs) != 1 || len(tx.Inputs[0].OwnersBefore) != 1 {
		return newProposalError("MultipleInputsError", "election proposal must have exactly one input with one owner")
	}
	initiator := tx.Inputs[0].OwnersBefore[0]
	if _, ok := validators.Find(initiator); !ok {
		return newProposalError("InvalidProposer", "initiator %s is not a current validator", initiator)
	}

	power, ok := txmodel.ElectionPower(tx)
	if !ok {
		return newProposalError("InvalidProposer", "proposal asset.data is missing a numeric power")
	}
	total := validators.TotalPower()
	if abs(power)*3 >= total {
		return newProposalError("InvalidPowerChange", "requested power change %d must be strictly less than one third of total power %d", power, total)
	}

	if !TopologyMatches(tx, validators) {
		return newProposalError("UnequalValidatorSet", "proposal outputs do not exactly match the current validator topology")
	}
	return nil
}

// TopologyMatches reports whether tx's outputs are exactly one-to-one with
// the current validator set: every validator appears once, with amount
// equal to its voting power, and no other recipients.
func TopologyMatches(tx *txmodel.Transaction, validators *ledger.ValidatorSet) bool {
	if len(tx.Outputs) != len(validators.Validators) {
		return false
	}
	remaining := make(map[string]int64, len(validators.Validators))
	for _, v := range validators.Validators {
		remaining[v.PublicKey] = v.VotingPower
	}
	for _, out := range tx.Outputs {
		if len(out.PublicKeys) != 1 {
			return false
		}
		power, ok := remaining[out.PublicKeys[0]]
		if !ok || power != int64(out.Amount) {
			return false
		}
		delete(remaining, out.PublicKeys[0])
	}
	return len(remaining) == 0
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// VoteAmountToElectionKey sums the outputs of a VOTE transaction that are
// assigned solely to electionPK. Outputs carrying additional public keys
// count as zero, preventing vote splitting (spec §4.E).
func VoteAmountToElectionKey(tx *txmodel.Transaction, electionPK string) uint64 {
	var total uint64
	for _, out := range tx.Outputs {
		if len(out.PublicKeys) == 1 && out.PublicKeys[0] == electionPK {
			total += out.Amount
		}
	}
	return total
}

// CommittedVotes sums every committed VOTE output assigned solely to
// election_pk(electionID) under asset.id = electionID. It walks the
// asset-token index (spec §4.A's get_asset_tokens_for_public_key) keyed by
// the election public key, the same index-backed path the original
// count_votes routine uses, rather than rescanning every transaction under
// the asset id.
func CommittedVotes(electionID string, store ledger.Store) (uint64, error) {
	electionPK, err := PublicKey(electionID)
	if err != nil {
		return 0, err
	}
	tokens, err := store.GetAssetTokensForPublicKey(electionID, electionPK)
	if err != nil {
		return 0, err
	}

	opByTxID := map[string]txmodel.Operation{}
	var total uint64
	for _, tok := range tokens {
		if !tok.SoleRecipient {
			continue
		}
		op, ok := opByTxID[tok.TxID]
		if !ok {
			tx, err := store.GetTransaction(tok.TxID)
			if err != nil {
				return 0, fmt.Errorf("lookup vote transaction %s: %w", tok.TxID, err)
			}
			op = tx.Operation
			opByTxID[tok.TxID] = op
		}
		if op != txmodel.OpValidatorElectionVote {
			continue
		}
		total += tok.Amount
	}
	return total, nil
}

// ApplyDelta computes the new validator set after inserting, updating, or
// removing the proposed node. Entries left at voting_power 0 are pruned.
func ApplyDelta(current []ledger.Validator, publicKey string, power int64) []ledger.Validator {
	out := make([]ledger.Validator, 0, len(current)+1)
	found := false
	for _, v := range current {
		if v.PublicKey == publicKey {
			found = true
			if power != 0 {
				out = append(out, ledger.Validator{PublicKey: publicKey, VotingPower: power})
			}
			continue
		}
		out = append(out, v)
	}
	if !found && power != 0 {
		out = append(out, ledger.Validator{PublicKey: publicKey, VotingPower: power})
	}
	return out
}

// Conclusion describes an election that transitioned in the block just
// delivered, carrying the validator set effective from height+1 onward.
type Conclusion struct {
	ElectionID    string
	NewValidators []ledger.Validator
}

// EvaluateBlock walks the block's accepted transactions in delivered order,
// accumulating in-block votes per election id, and returns the first
// election (if any) whose conclusion rule is satisfied. Subsequent
// conclusions in the same block are suppressed per the tie-breaking rule;
// they may re-evaluate at the next block under the new snapshot.
func EvaluateBlock(accepted []*txmodel.Transaction, currentValidators *ledger.ValidatorSet, store ledger.Store) (*Conclusion, error) {
	votesThisBlock := map[string]uint64{}
	total := currentValidators.TotalPower()

	for _, tx := range accepted {
		if tx.Operation != txmodel.OpValidatorElectionVote {
			continue
		}
		electionID := tx.AssetID()
		electionPK, err := PublicKey(electionID)
		if err != nil {
			continue
		}
		votesThisBlock[electionID] += VoteAmountToElectionKey(tx, electionPK)

		electionTx, err := store.GetTransaction(electionID)
		if err != nil {
			if err == ledger.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("lookup election %s: %w", electionID, err)
		}
		if !TopologyMatches(electionTx, currentValidators) {
			continue
		}

		before, err := CommittedVotes(electionID, store)
		if err != nil {
			return nil, fmt.Errorf("count committed votes for %s: %w", electionID, err)
		}
		after := before + votesThisBlock[electionID]

		if before*3 < uint64(total)*2 && after*3 >= uint64(total)*2 {
			power, ok := txmodel.ElectionPower(electionTx)
			if !ok {
				continue
			}
			publicKey, ok := txmodel.ElectionPublicKey(electionTx)
			if !ok {
				continue
			}
			newSet := ApplyDelta(currentValidators.Validators, publicKey, power)
			return &Conclusion{ElectionID: electionID, NewValidators: newSet}, nil
		}
	}
	return nil, nil
}

// Status reports an election's state relative to the validator-set
// timeline: CONCLUDED if a snapshot carries its id; ONGOING if the last
// validator-change height is less than the block height containing the
// election; otherwise INCONCLUSIVE (the topology has shifted under it).
func Status(electionID string, store ledger.Store) (string, error) {
	if _, err := store.GetValidatorsByElectionID(electionID); err == nil {
		return "CONCLUDED", nil
	} else if err != ledger.ErrNotFound {
		return "", err
	}

	electionHeight, found, err := store.GetBlockContainingTx(electionID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("election %s is not part of any committed block", electionID)
	}

	var tip uint64
	if latestBlock, err := store.GetLatestBlock(); err == nil {
		tip = latestBlock.Height
	} else if err != ledger.ErrNotFound {
		return "", err
	}

	latest, err := store.GetValidators(tip)
	if err != nil {
		if err == ledger.ErrNotFound {
			return "ONGOING", nil
		}
		return "", err
	}
	if latest.Height < electionHeight {
		return "ONGOING", nil
	}
	return "INCONCLUSIVE", nil
}
