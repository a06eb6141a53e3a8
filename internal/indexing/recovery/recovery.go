package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/solwatch/internal/indexing/metrics"
)

// Policy decides what happens when an indexing iteration fails.
type Policy string

const (
	// PolicyHalt returns the first error to the caller, ending the process.
	PolicyHalt Policy = "halt"
	// PolicyRetry waits with exponential backoff and runs the next iteration.
	PolicyRetry Policy = "retry"
)

// ParsePolicy accepts halt or retry. Empty means retry.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyRetry:
		return PolicyRetry, nil
	case PolicyHalt:
		return PolicyHalt, nil
	}
	return "", fmt.Errorf("unknown error policy %q", s)
}

// Step is one iteration of a supervised loop.
type Step func(ctx context.Context) error

// Runner repeats a Step until ctx is done, applying Policy to failures.
type Runner struct {
	policy   Policy
	strategy RetryStrategy
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewRunner creates a runner. A nil strategy uses DefaultBackoff.
func NewRunner(policy Policy, strategy RetryStrategy) *Runner {
	if strategy == nil {
		strategy = DefaultBackoff(nil)
	}
	return &Runner{
		policy:   policy,
		strategy: strategy,
		sleep:    Sleep,
		logger:   slog.Default().With("component", "recovery"),
	}
}

// WithSleep replaces the backoff wait. Used by tests.
func (r *Runner) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Runner {
	r.sleep = fn
	return r
}

// Run calls step until ctx is cancelled (returns nil) or a failure is not retried (returns it).
func (r *Runner) Run(ctx context.Context, step Step) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := step(ctx)
		if err == nil {
			attempt = 0
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		metrics.LoopErrors.Inc()

		if r.policy == PolicyHalt {
			r.logger.Error("indexing iteration failed, halting", "error", err)
			return err
		}
		if !r.strategy.ShouldRetry(err, attempt) {
			r.logger.Error("indexing iteration failed, not retrying", "error", err, "attempt", attempt+1)
			return err
		}

		delay := r.strategy.GetDelay(attempt)
		r.logger.Warn("indexing iteration failed, backing off",
			"error", err,
			"attempt", attempt+1,
			"delay", delay,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil
		}
		attempt++
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
