package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// MemoryStorage keeps every table in process memory. Used for tests and database-less dry runs.
type MemoryStorage struct {
	cursor   *domain.Cursor
	blocks   map[domain.Slot]domain.BlockSummary
	txs      map[string]domain.TransactionSummary
	programs map[string]map[string]struct{}
	skipped  map[domain.Slot]domain.SkippedSlot
	mu       sync.RWMutex
}

// NewMemoryStorage returns storage with the cursor seeded at slot 0.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		cursor:   &domain.Cursor{UpdatedAt: time.Now()},
		blocks:   make(map[domain.Slot]domain.BlockSummary),
		txs:      make(map[string]domain.TransactionSummary),
		programs: make(map[string]map[string]struct{}),
		skipped:  make(map[domain.Slot]domain.SkippedSlot),
	}
}

// Sink returns the write-side repositories backed by this storage.
func (s *MemoryStorage) Sink() storage.Sink {
	return storage.Sink{
		Blocks:       NewBlockRepo(s),
		Transactions: NewTxRepo(s),
		Programs:     NewProgramRepo(s),
	}
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context) (*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if r.store.cursor == nil {
		return nil, storage.ErrCursorNotFound
	}
	c := *r.store.cursor
	return &c, nil
}

func (r *CursorRepo) Advance(ctx context.Context, slot domain.Slot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.cursor == nil {
		r.store.cursor = &domain.Cursor{}
	}
	if slot > r.store.cursor.LastIndexedSlot {
		r.store.cursor.LastIndexedSlot = slot
	}
	r.store.cursor.UpdatedAt = time.Now()
	return nil
}

func (r *CursorRepo) Reset(ctx context.Context, slot domain.Slot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cursor = &domain.Cursor{LastIndexedSlot: slot, UpdatedAt: time.Now()}
	return nil
}

// -----------------------------------------------------------------------------
// Block Repository
// -----------------------------------------------------------------------------

type BlockRepo struct {
	store *MemoryStorage
}

func NewBlockRepo(store *MemoryStorage) *BlockRepo {
	return &BlockRepo{store: store}
}

func (r *BlockRepo) Upsert(ctx context.Context, block *domain.BlockSummary) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.blocks[block.Slot] = *block
	return nil
}

func (r *BlockRepo) GetBySlot(ctx context.Context, slot domain.Slot) (*domain.BlockSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.blocks[slot]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

func (r *BlockRepo) Count(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return int64(len(r.store.blocks)), nil
}

func (r *BlockRepo) FindGaps(ctx context.Context, rng domain.SlotRange) ([]domain.SlotRange, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var gaps []domain.SlotRange
	var open *domain.SlotRange
	for s := rng.Start; s <= rng.End; s++ {
		if _, ok := r.store.blocks[s]; ok {
			if open != nil {
				gaps = append(gaps, *open)
				open = nil
			}
		} else if open == nil {
			open = &domain.SlotRange{Start: s, End: s}
		} else {
			open.End = s
		}
		if s == rng.End {
			break
		}
	}
	if open != nil {
		gaps = append(gaps, *open)
	}
	return gaps, nil
}

// -----------------------------------------------------------------------------
// Transaction Repository
// -----------------------------------------------------------------------------

type TxRepo struct {
	store *MemoryStorage
}

func NewTxRepo(store *MemoryStorage) *TxRepo {
	return &TxRepo{store: store}
}

func (r *TxRepo) Upsert(ctx context.Context, tx *domain.TransactionSummary) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.txs[tx.Signature] = *tx
	return nil
}

func (r *TxRepo) GetBySignature(ctx context.Context, sig string) (*domain.TransactionSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	tx, ok := r.store.txs[sig]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &tx, nil
}

func (r *TxRepo) GetBySlot(ctx context.Context, slot domain.Slot) ([]*domain.TransactionSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.TransactionSummary
	for _, tx := range r.store.txs {
		if tx.Slot == slot {
			t := tx
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature < out[j].Signature })
	return out, nil
}

// -----------------------------------------------------------------------------
// Program Association Repository
// -----------------------------------------------------------------------------

type ProgramRepo struct {
	store *MemoryStorage
}

func NewProgramRepo(store *MemoryStorage) *ProgramRepo {
	return &ProgramRepo{store: store}
}

func (r *ProgramRepo) Associate(ctx context.Context, assocs []domain.ProgramAssociation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, a := range assocs {
		set, ok := r.store.programs[a.Signature]
		if !ok {
			set = make(map[string]struct{})
			r.store.programs[a.Signature] = set
		}
		set[a.ProgramID] = struct{}{}
	}
	return nil
}

func (r *ProgramRepo) ProgramsFor(ctx context.Context, sig string) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ids := make([]string, 0, len(r.store.programs[sig]))
	for id := range r.store.programs[sig] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AssociationCount returns the total number of stored pairs.
func (r *ProgramRepo) AssociationCount() int {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := 0
	for _, set := range r.store.programs {
		n += len(set)
	}
	return n
}

// -----------------------------------------------------------------------------
// Skipped Slot Repository
// -----------------------------------------------------------------------------

type SkippedSlotRepo struct {
	store *MemoryStorage
}

func NewSkippedSlotRepo(s *MemoryStorage) *SkippedSlotRepo { return &SkippedSlotRepo{store: s} }

func (r *SkippedSlotRepo) Record(ctx context.Context, s *domain.SkippedSlot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.skipped[s.Slot]
	if ok && existing.Status != domain.SkippedSlotPending {
		return nil
	}
	rec := *s
	rec.Status = domain.SkippedSlotPending
	if ok {
		rec.Attempts += existing.Attempts
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	r.store.skipped[s.Slot] = rec
	return nil
}

func (r *SkippedSlotRepo) Pending(ctx context.Context, limit int) ([]*domain.SkippedSlot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.SkippedSlot
	for _, s := range r.store.skipped {
		if s.Status == domain.SkippedSlotPending {
			rec := s
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SkippedSlotRepo) MarkResolved(ctx context.Context, slot domain.Slot, status domain.SkippedSlotStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.skipped[slot]
	if !ok {
		return nil
	}
	now := time.Now()
	s.Status = status
	s.ResolvedAt = &now
	r.store.skipped[slot] = s
	return nil
}

func (r *SkippedSlotRepo) CountPending(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var n int64
	for _, s := range r.store.skipped {
		if s.Status == domain.SkippedSlotPending {
			n++
		}
	}
	return n, nil
}
