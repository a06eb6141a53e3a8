package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/indexing/metrics"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// ProcessorConfig configures a replay run.
type ProcessorConfig struct {
	Limit       int           // Max pending slots taken per run (default: 100)
	MinInterval time.Duration // Minimum time between slots
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		Limit:       100,
		MinInterval: 200 * time.Millisecond,
	}
}

// Report summarizes one replay run.
type Report struct {
	Attempted    int
	Resolved     int
	Empty        int
	StillPending int
	Remaining    int64
}

// Processor replays pending skipped slots.
type Processor struct {
	config  ProcessorConfig
	skipped storage.SkippedSlotRepository
	slots   SlotProcessor
	sleep   func(ctx context.Context, d time.Duration) error
}

// Run replays up to Limit pending slots once and returns what happened.
// A hard fetch or persist error stops the run; slots handled before it keep their status.
func (p *Processor) Run(ctx context.Context) (Report, error) {
	var report Report

	pending, err := p.skipped.Pending(ctx, p.config.Limit)
	if err != nil {
		return report, fmt.Errorf("failed to list pending slots: %w", err)
	}

	for i, s := range pending {
		if i > 0 && p.config.MinInterval > 0 {
			if err := p.sleep(ctx, p.config.MinInterval); err != nil {
				return report, err
			}
		}

		report.Attempted++
		if err := p.replay(ctx, s.Slot, &report); err != nil {
			metrics.BackfillSlots.WithLabelValues("failed").Inc()
			return report, err
		}
	}

	remaining, err := p.skipped.CountPending(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to count pending slots: %w", err)
	}
	report.Remaining = remaining
	metrics.SkippedSlotsPending.Set(float64(remaining))

	return report, nil
}

func (p *Processor) replay(ctx context.Context, slot domain.Slot, report *Report) error {
	out, err := p.slots.Process(ctx, slot)
	if err != nil {
		return fmt.Errorf("replay slot %d: %w", slot, err)
	}

	var status domain.SkippedSlotStatus
	switch {
	case out.Indexed:
		status = domain.SkippedSlotResolved
		report.Resolved++
	case out.Reason == domain.SkipReasonSkipped:
		status = domain.SkippedSlotEmpty
		report.Empty++
	default:
		report.StillPending++
		metrics.BackfillSlots.WithLabelValues("pending").Inc()
		slog.Debug("slot still not available", "slot", slot, "attempts", out.Attempts)
		return nil
	}

	if err := p.skipped.MarkResolved(ctx, slot, status); err != nil {
		return fmt.Errorf("failed to mark slot %d %s: %w", slot, status, err)
	}
	metrics.BackfillSlots.WithLabelValues(string(status)).Inc()
	slog.Info("replayed skipped slot", "slot", slot, "status", status, "tx_count", out.TxCount)
	return nil
}
