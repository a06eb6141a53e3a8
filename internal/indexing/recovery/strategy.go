package recovery

import (
	"context"
	"errors"
	"math"
	"time"
)

// FailureCategory tells the runner whether an error is worth waiting out.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota
	CategoryFatal
)

// Classifier maps an error to a category.
type Classifier func(err error) FailureCategory

// DefaultClassifier treats everything as transient except context cancellation
// and errors registered with Fatal.
func DefaultClassifier(err error) FailureCategory {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryFatal
	}
	var f *fatalError
	if errors.As(err, &f) {
		return CategoryFatal
	}
	return CategoryTransient
}

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err so the runner stops even under the retry policy.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// RetryStrategy defines how retries should be handled.
type RetryStrategy interface {
	// GetDelay returns the delay for the given attempt (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if we should retry based on the error and attempt count.
	ShouldRetry(err error, attempt int) bool
}

// ExponentialBackoff implements a standard backoff strategy.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int // 0 = unbounded
	Classifier   Classifier
}

// DefaultBackoff waits 2s, 4s, 8s ... capped at 60s, without an attempt limit.
func DefaultBackoff(classifier Classifier) *ExponentialBackoff {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &ExponentialBackoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Classifier:   classifier,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks if error is transient and max attempts not exceeded.
func (s *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if s.MaxAttempts > 0 && attempt >= s.MaxAttempts {
		return false
	}
	return s.Classifier(err) == CategoryTransient
}
