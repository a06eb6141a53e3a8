package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

type cursorRow struct {
	LastIndexedSlot int64     `db:"last_indexed_slot"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Get retrieves the cursor row.
func (r *CursorRepo) Get(ctx context.Context) (*domain.Cursor, error) {
	var row cursorRow
	err := r.db.GetContext(ctx, &row,
		`SELECT last_indexed_slot, updated_at FROM observer_cursor WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &domain.Cursor{
		LastIndexedSlot: domain.Slot(row.LastIndexedSlot),
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

// Advance moves the cursor forward. GREATEST keeps a stale writer from lowering it.
func (r *CursorRepo) Advance(ctx context.Context, slot domain.Slot) error {
	query := `
		INSERT INTO observer_cursor (id, last_indexed_slot, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			last_indexed_slot = GREATEST(observer_cursor.last_indexed_slot, EXCLUDED.last_indexed_slot),
			updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, int64(slot)); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

// Reset overwrites the cursor.
func (r *CursorRepo) Reset(ctx context.Context, slot domain.Slot) error {
	query := `
		INSERT INTO observer_cursor (id, last_indexed_slot, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			last_indexed_slot = EXCLUDED.last_indexed_slot,
			updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, int64(slot)); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}
