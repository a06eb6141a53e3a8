package cursor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockCursorRepo struct {
	mu       sync.RWMutex
	cursor   *domain.Cursor
	advances []domain.Slot
	failWith error
}

func newMockCursorRepo(start domain.Slot) *mockCursorRepo {
	return &mockCursorRepo{
		cursor: &domain.Cursor{LastIndexedSlot: start},
	}
}

func (r *mockCursorRepo) Get(ctx context.Context) (*domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.cursor == nil {
		return nil, ErrCursorNotFound
	}
	c := *r.cursor
	return &c, nil
}

func (r *mockCursorRepo) Advance(ctx context.Context, slot domain.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return r.failWith
	}
	r.advances = append(r.advances, slot)
	if r.cursor == nil {
		r.cursor = &domain.Cursor{}
	}
	if slot > r.cursor.LastIndexedSlot {
		r.cursor.LastIndexedSlot = slot
	}
	r.cursor.UpdatedAt = time.Now()
	return nil
}

func (r *mockCursorRepo) Reset(ctx context.Context, slot domain.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cursor = &domain.Cursor{LastIndexedSlot: slot, UpdatedAt: time.Now()}
	return nil
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestManager_LoadFreshCursor(t *testing.T) {
	m := NewManager(newMockCursorRepo(0))

	slot, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if slot != 0 {
		t.Errorf("expected fresh cursor at 0, got %d", slot)
	}
}

func TestManager_LoadMissingCursor(t *testing.T) {
	repo := newMockCursorRepo(0)
	repo.cursor = nil
	m := NewManager(repo)

	slot, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("missing cursor should load as 0, got error %v", err)
	}
	if slot != 0 {
		t.Errorf("expected 0, got %d", slot)
	}

	// the first advance recreates the row
	if err := m.Advance(context.Background(), 1); err != nil {
		t.Fatalf("Advance(1) failed: %v", err)
	}
	if repo.cursor == nil || repo.cursor.LastIndexedSlot != 1 {
		t.Errorf("expected cursor row at 1, got %+v", repo.cursor)
	}
}

func TestManager_AdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := newMockCursorRepo(100)
	m := NewManager(repo)

	if err := m.Advance(ctx, 101); err != nil {
		t.Fatalf("Advance(101) failed: %v", err)
	}
	if err := m.Advance(ctx, 105); err != nil {
		t.Fatalf("Advance(105) failed: %v", err)
	}

	// equal is a no-op
	if err := m.Advance(ctx, 105); err != nil {
		t.Errorf("Advance to current value should be a no-op, got %v", err)
	}

	err := m.Advance(ctx, 104)
	if !errors.Is(err, ErrCursorRegression) {
		t.Errorf("expected ErrCursorRegression, got %v", err)
	}

	if len(repo.advances) != 2 {
		t.Errorf("expected 2 writes, got %d (%v)", len(repo.advances), repo.advances)
	}

	c, _ := repo.Get(ctx)
	if c.LastIndexedSlot != 105 {
		t.Errorf("expected cursor at 105, got %d", c.LastIndexedSlot)
	}
}

func TestManager_AdvanceStorageFailure(t *testing.T) {
	ctx := context.Background()
	repo := newMockCursorRepo(10)
	repo.failWith = errors.New("connection reset")
	m := NewManager(repo)

	if err := m.Advance(ctx, 11); err == nil {
		t.Fatal("expected error from failing repository")
	}

	// cached value must not move past what storage accepted
	repo.failWith = nil
	if err := m.Advance(ctx, 11); err != nil {
		t.Errorf("retrying the same slot should succeed, got %v", err)
	}
}

func TestManager_ResetMovesBackwards(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMockCursorRepo(500))

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := m.Reset(ctx, 10); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := m.Advance(ctx, 11); err != nil {
		t.Errorf("Advance after reset failed: %v", err)
	}
}

func TestManager_GetLag(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMockCursorRepo(90))

	lag, err := m.GetLag(ctx, 100)
	if err != nil {
		t.Fatalf("GetLag failed: %v", err)
	}
	if lag != 10 {
		t.Errorf("expected lag 10, got %d", lag)
	}

	lag, _ = m.GetLag(ctx, 80)
	if lag != -10 {
		t.Errorf("expected lag -10, got %d", lag)
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetricsCollector_SlotsPerSecond(t *testing.T) {
	mc := NewMetricsCollector(10)
	base := time.Now()

	mc.RecordSlot(100, base)
	mc.RecordSlot(110, base.Add(2*time.Second))
	mc.RecordSlot(120, base.Add(4*time.Second))

	m := mc.GetMetrics()
	if m.SlotsPerSecond != 5 {
		t.Errorf("expected 5 slots/sec, got %f", m.SlotsPerSecond)
	}
	if m.AverageSlotTime != 200*time.Millisecond {
		t.Errorf("expected 200ms per slot, got %v", m.AverageSlotTime)
	}
	if m.LastAdvanceAt == nil || !m.LastAdvanceAt.Equal(base.Add(4*time.Second)) {
		t.Errorf("unexpected LastAdvanceAt %v", m.LastAdvanceAt)
	}
}

func TestMetricsCollector_WindowAndSkips(t *testing.T) {
	mc := NewMetricsCollector(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		mc.RecordSlot(domain.Slot(i), base.Add(time.Duration(i)*time.Second))
	}
	if len(mc.records) != 3 || mc.records[0].Slot != 2 {
		t.Errorf("expected window of last 3 records, got %+v", mc.records)
	}

	mc.RecordSkip(7)
	mc.RecordSkip(9)
	m := mc.GetMetrics()
	if m.SkippedCount != 2 || m.LastSkipped == nil || *m.LastSkipped != 9 {
		t.Errorf("unexpected skip metrics %+v", m)
	}

	mc.Reset()
	if m := mc.GetMetrics(); m.SkippedCount != 0 || m.LastAdvanceAt != nil {
		t.Errorf("expected cleared metrics, got %+v", m)
	}
}
