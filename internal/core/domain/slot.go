package domain

import (
	"fmt"
	"strings"
)

// Slot is a position in the ledger's slot sequence. Not every slot produces a block.
type Slot uint64

// Commitment is the confirmation level requested from the ledger node.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment accepts processed, confirmed or finalized (case-insensitive).
// An empty string yields finalized.
func ParseCommitment(s string) (Commitment, error) {
	switch Commitment(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return CommitmentFinalized, nil
	case CommitmentProcessed:
		return CommitmentProcessed, nil
	case CommitmentConfirmed:
		return CommitmentConfirmed, nil
	case CommitmentFinalized:
		return CommitmentFinalized, nil
	}
	return "", fmt.Errorf("unknown commitment %q", s)
}

// BlockCommitment is the level usable with getBlock, which rejects processed.
func (c Commitment) BlockCommitment() Commitment {
	if c == CommitmentProcessed {
		return CommitmentConfirmed
	}
	return c
}

func (c Commitment) String() string { return string(c) }
