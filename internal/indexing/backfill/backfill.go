// Package backfill replays slots the indexing loop advanced past without a block.
//
// # Sources of work
//
// Slots reach the skipped-slot store in two ways:
//   - Loop: the pipeline records every slot it advances past without a block
//   - Scan: Detector.ScanRange compares a slot range with stored blocks (no RPC calls)
//
// # Replay
//
// Processor.Run takes pending slots in ascending order and sends each one through
// the same fetch, decode, filter and persist path as the loop. The cursor is never
// touched. A slot that now has a block is marked resolved; a slot the node reports
// as skipped by its leader is marked empty; a slot still not available stays pending.
//
// # Usage
//
//	detector := backfill.NewDetector(blockRepo, skippedRepo, runID)
//	processor := backfill.NewProcessor(backfill.DefaultConfig(), skippedRepo, slotProcessor)
//
//	gaps, _ := detector.ScanRange(ctx, domain.SlotRange{Start: 1000, End: 2000})
//	detector.QueueGaps(ctx, gaps)
//
//	report, err := processor.Run(ctx)
package backfill

import (
	"context"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/indexing/indexer"
	"github.com/vietddude/solwatch/internal/indexing/recovery"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// SlotProcessor fetches and persists a single slot.
type SlotProcessor interface {
	Process(ctx context.Context, slot domain.Slot) (indexer.Outcome, error)
}

// NewDetector creates a new gap detector.
func NewDetector(blocks storage.BlockRepository, skipped storage.SkippedSlotRepository, runID string) *Detector {
	return &Detector{
		blocks:  blocks,
		skipped: skipped,
		runID:   runID,
	}
}

// NewProcessor creates a new processor with the given configuration.
func NewProcessor(config ProcessorConfig, skipped storage.SkippedSlotRepository, slots SlotProcessor) *Processor {
	if config.Limit <= 0 {
		config.Limit = DefaultConfig().Limit
	}
	return &Processor{
		config:  config,
		skipped: skipped,
		slots:   slots,
		sleep:   recovery.Sleep,
	}
}
