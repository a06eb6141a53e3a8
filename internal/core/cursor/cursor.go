// Package cursor tracks the observer's position in the slot sequence.
//
// # Purpose
//
// The cursor is the single durable bookmark of the observer: the highest slot
// that has been either persisted or deliberately skipped. On restart, indexing
// resumes at cursor+1.
//
// # Key Features
//
// Monotonic - Advance never lowers the cursor. Advancing to the current value is
// a no-op; advancing below it returns ErrCursorRegression. Only Reset (an explicit
// operator action) may move it backwards.
//
// Ordered Writes - The loop advances the cursor only after a slot's block,
// transactions and program associations have been written (or after the slot
// was given up on).
//
// # Quick Start
//
//	manager := cursor.NewManager(cursorRepo)
//
//	last, _ := manager.Load(ctx)          // 0 on a fresh database
//	manager.Advance(ctx, last+1)          // ✓ OK
//	manager.Advance(ctx, last)            // ✗ ErrCursorRegression
//
//	lag, _ := manager.GetLag(ctx, head)   // head - last
//
// # Package Structure
//
//   - manager.go - Manager implementation with regression checks
//   - metrics.go - Throughput metrics (slots/sec, skipped count)
package cursor

import (
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// NewManager creates a cursor manager backed by repo.
func NewManager(repo storage.CursorRepository) *DefaultManager {
	return &DefaultManager{
		repo:      repo,
		collector: NewMetricsCollector(100),
	}
}
