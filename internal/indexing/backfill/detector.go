package backfill

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// maxScanChunk bounds the slots covered by one FindGaps query.
const maxScanChunk = 50_000

// Detector finds slots without a stored block.
// Uses database queries only.
type Detector struct {
	blocks  storage.BlockRepository
	skipped storage.SkippedSlotRepository
	runID   string
}

// ScanRange returns the gaps in rng, scanning in bounded chunks.
func (d *Detector) ScanRange(ctx context.Context, rng domain.SlotRange) ([]domain.SlotRange, error) {
	var gaps []domain.SlotRange
	for _, chunk := range rng.Split(maxScanChunk) {
		found, err := d.blocks.FindGaps(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to find gaps: %w", err)
		}
		gaps = append(gaps, found...)
	}
	return domain.MergeSlotRanges(gaps), nil
}

// QueueGaps records every slot of gaps as pending. Returns the number of slots queued.
func (d *Detector) QueueGaps(ctx context.Context, gaps []domain.SlotRange) (int, error) {
	queued := 0
	for _, gap := range gaps {
		for s := gap.Start; s <= gap.End; s++ {
			if err := d.skipped.Record(ctx, &domain.SkippedSlot{
				Slot:   s,
				Reason: domain.SkipReasonUnavailable,
				RunID:  d.runID,
				Status: domain.SkippedSlotPending,
			}); err != nil {
				return queued, fmt.Errorf("failed to queue slot %d: %w", s, err)
			}
			queued++
			if s == gap.End {
				break
			}
		}
	}

	if queued > 0 {
		slog.Info("queued slots without a stored block", "slots", queued, "ranges", len(gaps))
	}
	return queued, nil
}
