package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/solwatch/internal/core/config"
	"github.com/vietddude/solwatch/internal/core/cursor"
	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/indexing/backfill"
	"github.com/vietddude/solwatch/internal/indexing/filter"
	"github.com/vietddude/solwatch/internal/indexing/health"
	"github.com/vietddude/solwatch/internal/indexing/indexer"
	"github.com/vietddude/solwatch/internal/indexing/metrics"
	"github.com/vietddude/solwatch/internal/indexing/recovery"
	redisclient "github.com/vietddude/solwatch/internal/infra/redis"
	"github.com/vietddude/solwatch/internal/infra/solana"
	"github.com/vietddude/solwatch/internal/infra/storage"
	"github.com/vietddude/solwatch/internal/infra/storage/memory"
	"github.com/vietddude/solwatch/internal/infra/storage/postgres"
)

// Observer is the main application struct that owns every long-lived handle
// and wires config into storage, ledger clients, the indexing loop and the
// health server.
type Observer struct {
	cfg   *config.AppConfig
	runID string

	db    *postgres.DB          // nil when running on memory storage
	store *memory.MemoryStorage // nil when running on postgres
	redis *redisclient.Client   // nil unless gap_store is redis

	cursorRepo storage.CursorRepository
	blocks     storage.BlockRepository
	sink       storage.Sink
	skipped    storage.SkippedSlotRepository // nil when gap_store is none

	poll      *solana.PollClient
	cursorMgr *cursor.DefaultManager
	processor *indexer.Processor
	pipeline  *indexer.Pipeline
	healthMon *health.Monitor

	log *slog.Logger
}

// NewObserver connects to storage, applies migrations and builds every component.
func NewObserver(ctx context.Context, cfg *config.AppConfig) (*Observer, error) {
	o := &Observer{
		cfg:   cfg,
		runID: uuid.NewString(),
	}
	o.log = slog.Default().With("run_id", o.runID)

	// 1. Storage
	if err := o.initStorage(ctx); err != nil {
		o.Close()
		return nil, err
	}

	// 2. Gap store
	if err := o.initGapStore(ctx); err != nil {
		o.Close()
		return nil, err
	}

	// 3. Ledger clients
	o.poll = solana.NewRPCPollClient(cfg.Solana.HTTPURL, solana.PollConfig{
		Commitment:     cfg.Commitment(),
		Encoding:       solanago.EncodingType(cfg.Solana.BlockEncoding),
		MaxAttempts:    cfg.Indexer.FetchAttempts,
		RetryDelay:     cfg.Indexer.FetchRetryDelay,
		RequestTimeout: cfg.Solana.RequestTimeout,
	})

	var prober indexer.Prober
	if indexer.ProbeMode(cfg.Subscription.Mode) != indexer.ProbeDisabled {
		prober = newSlotWatcher(cfg)
	}

	// 4. Loop
	policy, err := recovery.ParsePolicy(cfg.Indexer.OnError)
	if err != nil {
		o.Close()
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	o.cursorMgr = cursor.NewManager(o.cursorRepo)
	o.processor = indexer.NewProcessor(o.poll, o.sink, filter.NewMemoryFilter(cfg.TargetSet()))
	o.pipeline = indexer.NewPipeline(indexer.Config{
		BatchCap:      cfg.Indexer.BatchCap,
		IdleInterval:  cfg.Indexer.IdleInterval,
		BatchDelay:    cfg.Indexer.BatchDelay,
		ProbeMode:     indexer.ProbeMode(cfg.Subscription.Mode),
		ProbeInterval: cfg.Subscription.Interval,
		RunID:         o.runID,
	}, indexer.Deps{
		Head:      o.poll,
		Processor: o.processor,
		Cursor:    o.cursorMgr,
		Gaps:      o.skipped,
		Prober:    prober,
		Runner:    recovery.NewRunner(policy, recovery.DefaultBackoff(nil)),
	})

	// 5. Health
	o.healthMon = health.NewMonitor(o.pipeline, o.skipped, health.DefaultThresholds())
	if o.db != nil {
		o.healthMon.AddDependency("database", o.db)
	}
	if o.redis != nil {
		o.healthMon.AddDependency("redis", o.redis)
	}

	return o, nil
}

// newSlotWatcher picks the slot notification transport.
func newSlotWatcher(cfg *config.AppConfig) indexer.Prober {
	if cfg.Subscription.Transport == config.TransportGeyser {
		return solana.NewGeyserClient(solana.GeyserConfig{
			Endpoint:   cfg.Subscription.GeyserEndpoint,
			Token:      cfg.Subscription.GeyserToken,
			Commitment: cfg.Commitment(),
			BurstSize:  cfg.Subscription.BurstSize,
			Timeout:    cfg.Subscription.Timeout,
		})
	}
	return solana.NewSubscriptionClient(solana.SubscriptionConfig{
		URL:       cfg.Solana.WSURL,
		BurstSize: cfg.Subscription.BurstSize,
		Timeout:   cfg.Subscription.Timeout,
	})
}

func (o *Observer) initStorage(ctx context.Context) error {
	if o.cfg.Database.URL == "" {
		o.log.Warn("no database url configured, using in-memory storage")
		o.store = memory.NewMemoryStorage()
		o.cursorRepo = memory.NewCursorRepo(o.store)
		o.blocks = memory.NewBlockRepo(o.store)
		o.sink = o.store.Sink()
		return nil
	}

	db, err := postgres.NewDB(ctx, o.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	o.db = db

	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}

	o.cursorRepo = postgres.NewCursorRepo(db)
	o.blocks = postgres.NewBlockRepo(db)
	o.sink = postgres.NewSink(db)
	o.log.Info("using postgres storage", "driver", o.cfg.Database.Driver)
	return nil
}

func (o *Observer) initGapStore(ctx context.Context) error {
	switch o.cfg.Indexer.GapStore {
	case config.GapStoreNone:
		o.log.Warn("skipped slots will not be recorded")
	case config.GapStoreRedis:
		client, err := redisclient.NewClient(ctx, o.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		o.redis = client
		o.skipped = redisclient.NewSkippedSlotRepo(client, o.cfg.Redis.Namespace)
	default:
		if o.db != nil {
			o.skipped = postgres.NewSkippedSlotRepo(o.db)
		} else {
			o.skipped = memory.NewSkippedSlotRepo(o.store)
		}
	}
	return nil
}

// RunID identifies this process in logs and skipped-slot records.
func (o *Observer) RunID() string { return o.runID }

// Run starts the continuous loop when enabled, otherwise performs a
// bootstrap-only run. Blocks until ctx is done or the loop halts.
func (o *Observer) Run(ctx context.Context) error {
	if !o.cfg.Indexer.Run {
		return o.Bootstrap(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// The loop returning for any reason stops the rest.
	g.Go(func() error {
		defer cancel()
		return o.pipeline.Start(gctx)
	})

	if o.cfg.Server.Port > 0 {
		srv := health.NewServer(o.healthMon, o.cfg.Server.Port)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if o.db != nil {
		o.db.StartMetricsCollector(gctx)
	}

	if o.skipped != nil {
		g.Go(func() error {
			o.samplePending(gctx)
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Bootstrap logs the persisted cursor and the loaded settings, then returns.
func (o *Observer) Bootstrap(ctx context.Context) error {
	last, err := o.cursorMgr.Load(ctx)
	if err != nil {
		return err
	}

	o.log.Info("bootstrap complete, continuous indexing disabled (set RUN_INDEXER=1)",
		"last_indexed_slot", last,
		"commitment", o.cfg.Commitment(),
		"subscription_transport", o.cfg.Subscription.Transport,
		"target_programs", o.cfg.TargetSet().IDs(),
	)
	return nil
}

// StatusReport is the operator view of indexing progress.
type StatusReport struct {
	RunID          string
	Cursor         domain.Slot
	CursorUpdated  time.Time
	Head           domain.Slot
	Lag            int64
	Commitment     domain.Commitment
	Blocks         int64
	SkippedPending int64
	GapStore       string
	HeadError      error
}

// Status reads the cursor, the ledger head and the skipped-slot backlog.
// An unreachable node is reported in HeadError rather than failing the call.
func (o *Observer) Status(ctx context.Context) (StatusReport, error) {
	c, err := o.cursorRepo.Get(ctx)
	switch {
	case errors.Is(err, storage.ErrCursorNotFound):
		c = &domain.Cursor{}
	case err != nil:
		return StatusReport{}, fmt.Errorf("failed to load cursor: %w", err)
	}

	report := StatusReport{
		RunID:         o.runID,
		Cursor:        c.LastIndexedSlot,
		CursorUpdated: c.UpdatedAt,
		Commitment:    o.cfg.Commitment(),
		GapStore:      o.cfg.Indexer.GapStore,
	}

	if report.Blocks, err = o.blocks.Count(ctx); err != nil {
		return report, err
	}

	if o.skipped != nil {
		if report.SkippedPending, err = o.skipped.CountPending(ctx); err != nil {
			return report, err
		}
	}

	head, err := o.poll.CurrentHead(ctx)
	if err != nil {
		report.HeadError = err
		return report, nil
	}
	report.Head = head
	report.Lag = int64(head) - int64(c.LastIndexedSlot)
	return report, nil
}

// ResetCursor overwrites the cursor. This is the only path that may lower it.
func (o *Observer) ResetCursor(ctx context.Context, slot domain.Slot) (domain.Slot, error) {
	prev, err := o.cursorMgr.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err := o.cursorMgr.Reset(ctx, slot); err != nil {
		return prev, err
	}
	o.log.Warn("cursor reset by operator", "from", prev, "to", slot)
	return prev, nil
}

// BackfillOptions selects what a backfill run replays.
type BackfillOptions struct {
	Limit    int
	Interval time.Duration
	Scan     *domain.SlotRange // queue slots without a stored block first
}

// Backfill replays pending skipped slots without touching the cursor.
func (o *Observer) Backfill(ctx context.Context, opts BackfillOptions) (backfill.Report, error) {
	if o.skipped == nil {
		return backfill.Report{}, fmt.Errorf("backfill needs a gap store: indexer.gap_store is %q", o.cfg.Indexer.GapStore)
	}

	if opts.Scan != nil {
		detector := backfill.NewDetector(o.blocks, o.skipped, o.runID)
		gaps, err := detector.ScanRange(ctx, *opts.Scan)
		if err != nil {
			return backfill.Report{}, err
		}
		if _, err := detector.QueueGaps(ctx, gaps); err != nil {
			return backfill.Report{}, err
		}
	}

	bfCfg := backfill.DefaultConfig()
	if opts.Limit > 0 {
		bfCfg.Limit = opts.Limit
	}
	if opts.Interval > 0 {
		bfCfg.MinInterval = opts.Interval
	}

	return backfill.NewProcessor(bfCfg, o.skipped, o.processor).Run(ctx)
}

// Migrate applies pending schema migrations and returns the resulting version.
func (o *Observer) Migrate(ctx context.Context) (int64, error) {
	if o.db == nil {
		return 0, errors.New("migrate needs a database: set DATABASE_URL or database.url")
	}
	if err := postgres.Migrate(ctx, o.db); err != nil {
		return 0, err
	}
	return postgres.MigrationVersion(ctx, o.db)
}

// Close releases every handle.
func (o *Observer) Close() {
	if o.redis != nil {
		if err := o.redis.Close(); err != nil {
			o.log.Warn("failed to close redis", "error", err)
		}
	}
	if o.db != nil {
		if err := o.db.Close(); err != nil {
			o.log.Warn("failed to close database", "error", err)
		}
	}
}

func (o *Observer) samplePending(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := o.skipped.CountPending(ctx); err == nil {
				metrics.SkippedSlotsPending.Set(float64(n))
			}
		}
	}
}
