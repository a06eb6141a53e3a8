package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/solwatch/internal/core/cursor"
	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/indexing/metrics"
	"github.com/vietddude/solwatch/internal/indexing/recovery"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// Pipeline implements the Indexer interface
type Pipeline struct {
	cfg       Config
	head      HeadSource
	processor *Processor
	cursor    cursor.Manager
	gaps      storage.SkippedSlotRepository // nil disables gap recording
	prober    Prober                        // nil disables probing
	runner    *recovery.Runner
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger

	running atomic.Bool
	cancel  context.CancelFunc

	mu     sync.RWMutex
	status Status
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Head      HeadSource
	Processor *Processor
	Cursor    cursor.Manager
	Gaps      storage.SkippedSlotRepository
	Prober    Prober
	Runner    *recovery.Runner
}

var _ Indexer = (*Pipeline)(nil)

// NewPipeline creates a new indexing pipeline
func NewPipeline(cfg Config, deps Deps) *Pipeline {
	def := DefaultConfig()
	if cfg.BatchCap <= 0 {
		cfg.BatchCap = def.BatchCap
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = def.IdleInterval
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.ProbeMode == "" {
		cfg.ProbeMode = def.ProbeMode
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if deps.Runner == nil {
		deps.Runner = recovery.NewRunner(recovery.PolicyRetry, recovery.DefaultBackoff(nil))
	}

	return &Pipeline{
		cfg:       cfg,
		head:      deps.Head,
		processor: deps.Processor,
		cursor:    deps.Cursor,
		gaps:      deps.Gaps,
		prober:    deps.Prober,
		runner:    deps.Runner,
		sleep:     recovery.Sleep,
		logger:    slog.Default().With("component", "pipeline", "run_id", cfg.RunID),
	}
}

// WithSleep replaces the pacing sleep. Used by tests.
func (p *Pipeline) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Pipeline {
	p.sleep = fn
	return p
}

// Start begins the indexing loop
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	p.logger.Info("indexing loop started",
		"batch_cap", p.cfg.BatchCap,
		"probe_mode", p.cfg.ProbeMode,
	)

	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.ProbeMode == ProbeBackground && p.prober != nil {
		g.Go(func() error {
			p.probeLoop(gctx)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return p.runner.Run(gctx, p.Step)
	})

	err := g.Wait()
	p.logger.Info("indexing loop stopped", "error", err)
	return err
}

// Stop stops the pipeline
func (p *Pipeline) Stop() error {
	p.mu.RLock()
	cancel := p.cancel
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// GetStatus returns the current status
func (p *Pipeline) GetStatus() Status {
	p.mu.RLock()
	st := p.status
	p.mu.RUnlock()

	st.Running = p.running.Load()
	if p.cursor != nil {
		m := p.cursor.GetMetrics()
		st.SlotsPerSecond = m.SlotsPerSecond
		st.SkippedSlots = m.SkippedCount
	}
	return st
}

// Step runs one iteration: probe, read cursor and head, then either idle or
// process one batch of at most BatchCap slots.
func (p *Pipeline) Step(ctx context.Context) (err error) {
	defer func() {
		p.mu.Lock()
		p.status.LastIteration = time.Now()
		if err != nil && ctx.Err() == nil {
			p.status.LastError = err.Error()
		}
		p.mu.Unlock()
	}()

	if p.cfg.ProbeMode == ProbeInline && p.prober != nil {
		p.probe(ctx)
	}

	last, err := p.cursor.Load(ctx)
	if err != nil {
		return err
	}

	head, err := p.head.CurrentHead(ctx)
	if err != nil {
		return fmt.Errorf("get head: %w", err)
	}

	p.observe(last, head)

	if last >= head {
		return p.sleep(ctx, p.cfg.IdleInterval)
	}

	end := min(last+domain.Slot(p.cfg.BatchCap), head)
	p.logger.Debug("processing batch", "from", last+1, "to", end, "head", head)

	for slot := last + 1; slot <= end; slot++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.handleSlot(ctx, slot); err != nil {
			return err
		}
		p.observe(slot, head)
	}

	return p.sleep(ctx, p.cfg.BatchDelay)
}

// handleSlot processes slot and advances the cursor past it. A slot without a
// block is recorded as skipped and still advanced past.
func (p *Pipeline) handleSlot(ctx context.Context, slot domain.Slot) error {
	out, err := p.processor.Process(ctx, slot)
	if err != nil {
		metrics.SlotsProcessed.WithLabelValues("failed").Inc()
		return fmt.Errorf("slot %d: %w", slot, err)
	}

	if out.Indexed {
		metrics.SlotsProcessed.WithLabelValues("indexed").Inc()
		p.logger.Info("slot indexed",
			"slot", slot,
			"tx_count", out.TxCount,
			"err_count", out.ErrCount,
			"associations", out.Associations,
		)
	} else {
		metrics.SlotsProcessed.WithLabelValues(string(out.Reason)).Inc()
		p.logger.Warn("slot has no block, advancing past it",
			"slot", slot,
			"reason", out.Reason,
			"attempts", out.Attempts,
		)
		if p.gaps != nil {
			if err := p.gaps.Record(ctx, &domain.SkippedSlot{
				Slot:     slot,
				Reason:   out.Reason,
				Attempts: out.Attempts,
				RunID:    p.cfg.RunID,
				Status:   domain.SkippedSlotPending,
			}); err != nil {
				return fmt.Errorf("record skipped slot %d: %w", slot, err)
			}
		}
		p.cursor.RecordSkip(slot)
	}

	if err := p.cursor.Advance(ctx, slot); err != nil {
		if errors.Is(err, cursor.ErrCursorRegression) {
			return recovery.Fatal(err)
		}
		return err
	}
	return nil
}

func (p *Pipeline) observe(last, head domain.Slot) {
	metrics.CursorSlot.Set(float64(last))
	metrics.ChainHeadSlot.Set(float64(head))
	lag := int64(head) - int64(last)
	if lag < 0 {
		lag = 0
	}
	metrics.SlotLag.Set(float64(lag))

	p.mu.Lock()
	if last > p.status.Cursor {
		p.status.LastProgress = time.Now()
	}
	p.status.Cursor = last
	p.status.Head = head
	p.status.Lag = lag
	p.mu.Unlock()
}

// probe collects one slot burst. Failures are logged and never fail the iteration.
func (p *Pipeline) probe(ctx context.Context) {
	burst, err := p.prober.CollectSlotBurst(ctx)
	res := &ProbeResult{At: time.Now(), Events: burst.Events, Last: burst.LastSlot}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ProbeEvents.WithLabelValues("failed").Inc()
		res.Error = err.Error()
		p.logger.Warn("slot subscription probe failed", "error", err)
	} else {
		metrics.ProbeEvents.WithLabelValues("ok").Inc()
		p.logger.Debug("slot subscription probe",
			"events", burst.Events,
			"first", burst.FirstSlot,
			"last", burst.LastSlot,
		)
	}

	p.mu.Lock()
	p.status.LastProbe = res
	p.mu.Unlock()
}

func (p *Pipeline) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()

	p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}
