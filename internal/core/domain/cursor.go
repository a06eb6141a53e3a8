package domain

import "time"

// Cursor is the last slot the observer has finished with, processed or skipped.
type Cursor struct {
	LastIndexedSlot Slot
	UpdatedAt       time.Time
}
