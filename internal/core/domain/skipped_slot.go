package domain

import "time"

// SkipReason explains why a slot was passed over.
type SkipReason string

const (
	// SkipReasonUnavailable means the node kept answering "block not available" past the retry budget.
	SkipReasonUnavailable SkipReason = "unavailable"
	// SkipReasonSkipped means the node reports the slot produced no block.
	SkipReasonSkipped SkipReason = "skipped"
)

type SkippedSlotStatus string

const (
	SkippedSlotPending  SkippedSlotStatus = "pending"
	SkippedSlotResolved SkippedSlotStatus = "resolved"
	SkippedSlotEmpty    SkippedSlotStatus = "empty"
)

// SkippedSlot records a slot the indexing loop advanced past without persisting a block.
type SkippedSlot struct {
	Slot       Slot
	Reason     SkipReason
	Attempts   int
	RunID      string
	Status     SkippedSlotStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
