package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/indexing/metrics"
	"github.com/vietddude/solwatch/internal/indexing/recovery"
)

// BlockSource is the part of *rpc.Client the poll client uses.
type BlockSource interface {
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetBlockWithOpts(ctx context.Context, slot uint64, opts *rpc.GetBlockOpts) (*rpc.GetBlockResult, error)
}

var _ BlockSource = (*rpc.Client)(nil)

// PollConfig configures head and block queries.
type PollConfig struct {
	Commitment     domain.Commitment
	Encoding       solanago.EncodingType // binary transaction encoding for getBlock
	MaxAttempts    int
	RetryDelay     time.Duration
	RequestTimeout time.Duration // per call; zero leaves it to ctx
}

// DefaultPollConfig matches the node's public devnet behaviour.
var DefaultPollConfig = PollConfig{
	Commitment:     domain.CommitmentFinalized,
	Encoding:       solanago.EncodingBase64,
	MaxAttempts:    5,
	RetryDelay:     500 * time.Millisecond,
	RequestTimeout: 30 * time.Second,
}

// FetchStatus is the non-error outcome of a block fetch.
type FetchStatus int

const (
	FetchAvailable FetchStatus = iota
	FetchUnavailable
)

// FetchResult is a block fetch outcome. Block is set only when Status is FetchAvailable.
type FetchResult struct {
	Status   FetchStatus
	Block    *rpc.GetBlockResult
	Attempts int
	Reason   domain.SkipReason // set when unavailable
}

// PollClient answers authoritative head and block queries.
type PollClient struct {
	rpc    BlockSource
	cfg    PollConfig
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// NewPollClient creates a poll client. Zero config fields take DefaultPollConfig values.
func NewPollClient(source BlockSource, cfg PollConfig) *PollClient {
	if cfg.Commitment == "" {
		cfg.Commitment = DefaultPollConfig.Commitment
	}
	if cfg.Encoding == "" {
		cfg.Encoding = DefaultPollConfig.Encoding
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPollConfig.MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultPollConfig.RetryDelay
	}
	return &PollClient{
		rpc:    source,
		cfg:    cfg,
		sleep:  recovery.Sleep,
		logger: slog.Default().With("component", "poll_client"),
	}
}

// NewRPCPollClient creates a poll client talking JSON-RPC to endpoint.
func NewRPCPollClient(endpoint string, cfg PollConfig) *PollClient {
	return NewPollClient(rpc.New(endpoint), cfg)
}

// WithSleep replaces the retry delay function. Used by tests.
func (p *PollClient) WithSleep(fn func(ctx context.Context, d time.Duration) error) *PollClient {
	p.sleep = fn
	return p
}

// Commitment returns the configured commitment level.
func (p *PollClient) Commitment() domain.Commitment {
	return p.cfg.Commitment
}

// CurrentHead returns the node's current slot at the configured commitment.
func (p *PollClient) CurrentHead(ctx context.Context) (domain.Slot, error) {
	var slot uint64
	err := p.call(ctx, "getSlot", func(ctx context.Context) (err error) {
		slot, err = p.rpc.GetSlot(ctx, rpc.CommitmentType(p.cfg.Commitment))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}
	metrics.ChainHeadSlot.Set(float64(slot))
	return domain.Slot(slot), nil
}

// FetchBlock fetches a block, retrying while the node reports it as not yet available.
//
// Returns FetchUnavailable (not an error) when the slot was skipped by its leader or
// stayed unavailable for every attempt. Any other failure is returned immediately.
func (p *PollClient) FetchBlock(ctx context.Context, slot domain.Slot) (FetchResult, error) {
	maxVersion := uint64(0)
	rewards := false
	opts := &rpc.GetBlockOpts{
		Encoding:                       p.cfg.Encoding,
		TransactionDetails:             rpc.TransactionDetailsFull,
		Rewards:                        &rewards,
		Commitment:                     rpc.CommitmentType(p.cfg.Commitment.BlockCommitment()),
		MaxSupportedTransactionVersion: &maxVersion,
	}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return FetchResult{}, err
		}

		var block *rpc.GetBlockResult
		err := p.call(ctx, "getBlock", func(ctx context.Context) (err error) {
			block, err = p.rpc.GetBlockWithOpts(ctx, uint64(slot), opts)
			return err
		})
		switch {
		case err == nil && block != nil:
			return FetchResult{Status: FetchAvailable, Block: block, Attempts: attempt}, nil
		case err == nil, IsSlotSkipped(err):
			p.logger.Debug("slot skipped by leader", "slot", slot, "error", err)
			return FetchResult{Status: FetchUnavailable, Attempts: attempt, Reason: domain.SkipReasonSkipped}, nil
		case IsBlockNotAvailable(err):
			p.logger.Info("block not available yet",
				"slot", slot,
				"attempt", attempt,
				"max_attempts", p.cfg.MaxAttempts,
			)
			if attempt == p.cfg.MaxAttempts {
				break
			}
			metrics.BlockFetchRetries.Inc()
			if err := p.sleep(ctx, p.cfg.RetryDelay); err != nil {
				return FetchResult{}, err
			}
		default:
			return FetchResult{}, fmt.Errorf("getBlock %d: %w", slot, err)
		}
	}

	return FetchResult{
		Status:   FetchUnavailable,
		Attempts: p.cfg.MaxAttempts,
		Reason:   domain.SkipReasonUnavailable,
	}, nil
}

// call runs fn under the request timeout and records call metrics.
func (p *PollClient) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(method).Inc()
	err := fn(ctx)
	metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(method, ErrorType(err)).Inc()
	}
	return err
}
