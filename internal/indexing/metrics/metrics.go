package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SlotsProcessed tracks slots handled by the loop, by outcome (indexed, skipped)
	SlotsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solwatch_slots_processed_total",
			Help: "Total number of slots handled by the indexing loop",
		},
		[]string{"outcome"},
	)

	// TransactionsIndexed tracks persisted transaction summaries
	TransactionsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solwatch_transactions_indexed_total",
			Help: "Total number of transaction summaries persisted",
		},
	)

	// ProgramAssociations tracks persisted transaction to program links
	ProgramAssociations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solwatch_program_associations_total",
			Help: "Total number of program associations written",
		},
	)

	// RPCCallsTotal tracks ledger node calls per method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solwatch_rpc_calls_total",
			Help: "Total number of ledger node RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal tracks ledger node errors per method and type
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solwatch_rpc_errors_total",
			Help: "Total number of ledger node RPC errors",
		},
		[]string{"method", "error_type"},
	)

	// RPCLatency tracks ledger node call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solwatch_rpc_latency_seconds",
			Help:    "Ledger node RPC latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// BlockFetchRetries tracks "block not available" retries
	BlockFetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solwatch_block_fetch_retries_total",
			Help: "Total number of block fetch retries for not-yet-available blocks",
		},
	)

	// ChainHeadSlot tracks the node's head slot at the configured commitment
	ChainHeadSlot = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solwatch_chain_head_slot",
			Help: "Latest slot reported by the ledger node",
		},
	)

	// CursorSlot tracks the persisted cursor
	CursorSlot = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solwatch_cursor_slot",
			Help: "Last slot processed or skipped by the observer",
		},
	)

	// SlotLag tracks head minus cursor
	SlotLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solwatch_slot_lag",
			Help: "Slots between the chain head and the cursor",
		},
	)

	// SlotProcessingDuration tracks fetch-to-cursor time per slot
	SlotProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solwatch_slot_processing_seconds",
			Help:    "Time to fetch, decode and persist one slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LoopErrors tracks iterations that ended in an error
	LoopErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solwatch_loop_errors_total",
			Help: "Total number of indexing iterations that failed",
		},
	)

	// BackfillSlots tracks replayed skipped slots, by result
	BackfillSlots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solwatch_backfill_slots_total",
			Help: "Total number of skipped slots replayed by backfill",
		},
		[]string{"result"},
	)

	// SkippedSlotsPending tracks recorded skipped slots not yet resolved
	SkippedSlotsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solwatch_skipped_slots_pending",
			Help: "Number of recorded skipped slots awaiting backfill",
		},
	)

	// ProbeEvents tracks runs of the subscription probe, by result
	ProbeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solwatch_probe_runs_total",
			Help: "Total number of subscription probe runs",
		},
		[]string{"result"},
	)

	// DBConnectionPoolUsage tracks the share of open connections in the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solwatch_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool size",
		},
	)
)
