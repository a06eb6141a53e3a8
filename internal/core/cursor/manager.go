package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

var (
	// ErrCursorNotFound is returned when the cursor row is missing.
	ErrCursorNotFound = storage.ErrCursorNotFound

	// ErrCursorRegression is returned when Advance would move the cursor backwards.
	ErrCursorRegression = errors.New("cursor regression")
)

// Manager handles cursor operations.
type Manager interface {
	// Load reads the persisted cursor value.
	Load(ctx context.Context) (domain.Slot, error)

	// Advance moves the cursor to slot. Equal is a no-op, lower is an error.
	Advance(ctx context.Context, slot domain.Slot) error

	// Reset overwrites the cursor unconditionally.
	Reset(ctx context.Context, slot domain.Slot) error

	// GetLag returns slots behind the given head.
	GetLag(ctx context.Context, head domain.Slot) (int64, error)

	// RecordSkip counts a slot that was advanced past without a block.
	RecordSkip(slot domain.Slot)

	// GetMetrics returns throughput metrics.
	GetMetrics() Metrics
}

// DefaultManager implements Manager.
type DefaultManager struct {
	repo      storage.CursorRepository
	mu        sync.RWMutex
	current   *domain.Slot
	collector *MetricsCollector
}

var _ Manager = (*DefaultManager)(nil)

// Load reads the cursor from storage and caches it. A missing cursor row
// reads as slot 0; the first Advance writes it back.
func (m *DefaultManager) Load(ctx context.Context) (domain.Slot, error) {
	var slot domain.Slot
	c, err := m.repo.Get(ctx)
	switch {
	case errors.Is(err, ErrCursorNotFound):
		slot = 0
	case err != nil:
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	default:
		slot = c.LastIndexedSlot
	}

	m.mu.Lock()
	m.current = &slot
	m.mu.Unlock()

	return slot, nil
}

// Advance moves the cursor forward after a slot has been handled.
func (m *DefaultManager) Advance(ctx context.Context, slot domain.Slot) error {
	m.mu.RLock()
	cached := m.current
	m.mu.RUnlock()

	var current domain.Slot
	if cached != nil {
		current = *cached
	} else {
		loaded, err := m.Load(ctx)
		if err != nil {
			return err
		}
		current = loaded
	}

	if slot == current {
		return nil
	}
	if slot < current {
		return fmt.Errorf("%w: cursor at %d, got %d", ErrCursorRegression, current, slot)
	}

	if err := m.repo.Advance(ctx, slot); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	m.mu.Lock()
	m.current = &slot
	m.collector.RecordSlot(slot, time.Now())
	m.mu.Unlock()

	return nil
}

// Reset overwrites the cursor and clears throughput history.
func (m *DefaultManager) Reset(ctx context.Context, slot domain.Slot) error {
	if err := m.repo.Reset(ctx, slot); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	m.mu.Lock()
	m.current = &slot
	m.collector.Reset()
	m.mu.Unlock()

	return nil
}

// GetLag returns how far the cursor trails head. Negative when the cursor is ahead.
func (m *DefaultManager) GetLag(ctx context.Context, head domain.Slot) (int64, error) {
	m.mu.RLock()
	cached := m.current
	m.mu.RUnlock()

	var current domain.Slot
	if cached != nil {
		current = *cached
	} else {
		loaded, err := m.Load(ctx)
		if err != nil {
			return 0, err
		}
		current = loaded
	}

	return int64(head) - int64(current), nil
}

// RecordSkip counts a skipped slot.
func (m *DefaultManager) RecordSkip(slot domain.Slot) {
	m.mu.Lock()
	m.collector.RecordSkip(slot)
	m.mu.Unlock()
}

// GetMetrics returns throughput metrics.
func (m *DefaultManager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collector.GetMetrics()
}
