package storage

import (
	"context"
	"errors"

	"github.com/vietddude/solwatch/internal/core/domain"
)

var (
	// ErrCursorNotFound is returned when the cursor row has not been seeded
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrNotFound is returned by point lookups that match nothing
	ErrNotFound = errors.New("record not found")
)

// CursorRepository persists the single observer cursor
type CursorRepository interface {
	// Get retrieves the cursor
	Get(ctx context.Context) (*domain.Cursor, error)

	// Advance moves the cursor to slot; storage never lowers it
	Advance(ctx context.Context, slot domain.Slot) error

	// Reset sets the cursor unconditionally (operator override)
	Reset(ctx context.Context, slot domain.Slot) error
}

// BlockRepository handles block summary storage
type BlockRepository interface {
	// Upsert inserts or replaces a block summary keyed by slot
	Upsert(ctx context.Context, block *domain.BlockSummary) error

	// GetBySlot retrieves a block summary
	GetBySlot(ctx context.Context, slot domain.Slot) (*domain.BlockSummary, error)

	// Count returns the number of stored blocks
	Count(ctx context.Context) (int64, error)

	// FindGaps returns the sub-ranges of r that have no stored block, ascending
	FindGaps(ctx context.Context, r domain.SlotRange) ([]domain.SlotRange, error)
}

// TransactionRepository handles transaction summary storage
type TransactionRepository interface {
	// Upsert inserts or replaces a transaction summary keyed by signature
	Upsert(ctx context.Context, tx *domain.TransactionSummary) error

	// GetBySignature retrieves a transaction summary
	GetBySignature(ctx context.Context, signature string) (*domain.TransactionSummary, error)

	// GetBySlot retrieves all transactions stored for a slot
	GetBySlot(ctx context.Context, slot domain.Slot) ([]*domain.TransactionSummary, error)
}

// ProgramRepository handles transaction to program associations
type ProgramRepository interface {
	// Associate inserts associations, ignoring ones already present
	Associate(ctx context.Context, assocs []domain.ProgramAssociation) error

	// ProgramsFor lists the program ids associated with a signature, sorted
	ProgramsFor(ctx context.Context, signature string) ([]string, error)
}

// SkippedSlotRepository handles slots the loop advanced past without a block
type SkippedSlotRepository interface {
	// Record stores a skipped slot; recording the same slot twice keeps one row
	Record(ctx context.Context, s *domain.SkippedSlot) error

	// Pending returns up to limit unresolved slots in ascending order
	Pending(ctx context.Context, limit int) ([]*domain.SkippedSlot, error)

	// MarkResolved sets the final status of a slot
	MarkResolved(ctx context.Context, slot domain.Slot, status domain.SkippedSlotStatus) error

	// CountPending returns the number of unresolved slots
	CountPending(ctx context.Context) (int64, error)
}

// Sink is the write side the indexing loop persists into
type Sink struct {
	Blocks       BlockRepository
	Transactions TransactionRepository
	Programs     ProgramRepository
}
