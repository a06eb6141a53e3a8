package indexer

import (
	"context"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/solana"
)

// Indexer is the main orchestrator that coordinates all components
type Indexer interface {
	// Start runs the indexing loop until ctx is done or a failure is not retried
	Start(ctx context.Context) error

	// Stop asks a running loop to return
	Stop() error

	// GetStatus returns current indexing status
	GetStatus() Status
}

// Status is a snapshot of the loop for health reporting.
type Status struct {
	Running        bool
	Cursor         domain.Slot
	Head           domain.Slot
	Lag            int64
	SlotsPerSecond float64
	SkippedSlots   int
	LastIteration  time.Time
	LastProgress   time.Time
	LastError      string
	LastProbe      *ProbeResult
}

// ProbeResult is the outcome of the most recent subscription probe.
type ProbeResult struct {
	At     time.Time
	Events int
	Last   *domain.Slot
	Error  string
}

// HeadSource reports the ledger head.
type HeadSource interface {
	CurrentHead(ctx context.Context) (domain.Slot, error)
}

// BlockFetcher fetches a block with its own availability retries.
type BlockFetcher interface {
	FetchBlock(ctx context.Context, slot domain.Slot) (solana.FetchResult, error)
}

// Prober is the advisory slot subscription.
type Prober interface {
	CollectSlotBurst(ctx context.Context) (solana.SlotBurst, error)
}

// ProbeMode controls when the subscription probe runs.
type ProbeMode string

const (
	// ProbeInline runs the probe at the top of every iteration.
	ProbeInline ProbeMode = "inline"
	// ProbeBackground runs the probe on its own goroutine every ProbeInterval.
	ProbeBackground ProbeMode = "background"
	// ProbeDisabled never runs the probe.
	ProbeDisabled ProbeMode = "disabled"
)

// Config holds loop tuning.
type Config struct {
	BatchCap      int
	IdleInterval  time.Duration
	BatchDelay    time.Duration
	ProbeMode     ProbeMode
	ProbeInterval time.Duration
	RunID         string
}

// DefaultConfig returns the standard pacing: 20 slots per batch, 1s idle, 200ms between batches.
func DefaultConfig() Config {
	return Config{
		BatchCap:      20,
		IdleInterval:  time.Second,
		BatchDelay:    200 * time.Millisecond,
		ProbeMode:     ProbeInline,
		ProbeInterval: 30 * time.Second,
	}
}
