package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/indexing/decoder"
	"github.com/vietddude/solwatch/internal/indexing/filter"
	"github.com/vietddude/solwatch/internal/indexing/metrics"
	"github.com/vietddude/solwatch/internal/infra/solana"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// Outcome describes what happened to one slot.
type Outcome struct {
	Indexed      bool
	Reason       domain.SkipReason // set when not indexed
	Attempts     int
	TxCount      int
	ErrCount     int
	Associations int
}

// Processor runs fetch, decode, filter and persist for a single slot.
// It never touches the cursor.
type Processor struct {
	fetcher BlockFetcher
	sink    storage.Sink
	filter  filter.Filter
	logger  *slog.Logger
}

// NewProcessor creates a slot processor.
func NewProcessor(fetcher BlockFetcher, sink storage.Sink, f filter.Filter) *Processor {
	return &Processor{
		fetcher: fetcher,
		sink:    sink,
		filter:  f,
		logger:  slog.Default().With("component", "processor"),
	}
}

// Process handles slot. An unavailable block is reported in Outcome, not as an error.
func (p *Processor) Process(ctx context.Context, slot domain.Slot) (Outcome, error) {
	start := time.Now()

	res, err := p.fetcher.FetchBlock(ctx, slot)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch slot %d: %w", slot, err)
	}

	switch res.Status {
	case solana.FetchUnavailable:
		return Outcome{Reason: res.Reason, Attempts: res.Attempts}, nil
	case solana.FetchAvailable:
	}

	decoded := decoder.Decode(slot, res.Block)
	assocs, err := p.Persist(ctx, decoded)
	if err != nil {
		return Outcome{}, err
	}

	metrics.SlotProcessingDuration.Observe(time.Since(start).Seconds())

	return Outcome{
		Indexed:      true,
		Attempts:     res.Attempts,
		TxCount:      decoded.Summary.TxCount,
		ErrCount:     decoded.Summary.ErrCount,
		Associations: assocs,
	}, nil
}

// Persist writes the block summary, then every transaction summary, then the
// associations that pass the filter. Returns the number of associations written.
func (p *Processor) Persist(ctx context.Context, decoded domain.DecodedBlock) (int, error) {
	slot := decoded.Summary.Slot

	if err := p.sink.Blocks.Upsert(ctx, &decoded.Summary); err != nil {
		return 0, err
	}

	var assocs []domain.ProgramAssociation
	for i := range decoded.Transactions {
		tx := &decoded.Transactions[i]
		if err := p.sink.Transactions.Upsert(ctx, &tx.Summary); err != nil {
			return 0, err
		}
		assocs = append(assocs, filter.Associations(p.filter, tx.Summary, tx.ProgramIDs)...)
	}

	if len(assocs) > 0 {
		if err := p.sink.Programs.Associate(ctx, assocs); err != nil {
			return 0, fmt.Errorf("slot %d: %w", slot, err)
		}
	}

	metrics.TransactionsIndexed.Add(float64(len(decoded.Transactions)))
	metrics.ProgramAssociations.Add(float64(len(assocs)))

	return len(assocs), nil
}
