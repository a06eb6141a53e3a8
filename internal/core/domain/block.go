package domain

import "fmt"

// BlockSummary is the persisted digest of one block.
type BlockSummary struct {
	Slot       Slot
	ParentSlot Slot
	Blockhash  string
	BlockTime  *int64 // unix seconds, nil when the node does not report it
	TxCount    int
	ErrCount   int
}

// TransactionSummary is the persisted digest of one transaction.
type TransactionSummary struct {
	Signature    string
	Slot         Slot
	IsError      bool
	FeeLamports  *uint64
	ComputeUnits *uint64
	FirstError   *string // compact JSON of the failure, when IsError
}

// ProgramAssociation links a transaction to a program it invoked.
type ProgramAssociation struct {
	Signature string
	Slot      Slot
	ProgramID string
}

// DecodedTransaction is a summary together with the distinct, sorted program ids it invoked.
type DecodedTransaction struct {
	Summary    TransactionSummary
	ProgramIDs []string
}

// DecodedBlock is the output of decoding a fetched block.
type DecodedBlock struct {
	Summary      BlockSummary
	Transactions []DecodedTransaction
}

// FallbackSignature is used when a transaction's encoding exposes no signature.
func FallbackSignature(slot Slot, index int) string {
	return fmt.Sprintf("missing-signature-%d-%d", slot, index)
}
