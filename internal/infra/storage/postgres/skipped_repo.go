package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
)

// SkippedSlotRepo implements storage.SkippedSlotRepository using PostgreSQL.
type SkippedSlotRepo struct {
	db *DB
}

// NewSkippedSlotRepo creates a new PostgreSQL skipped slot repository.
func NewSkippedSlotRepo(db *DB) *SkippedSlotRepo {
	return &SkippedSlotRepo{db: db}
}

// Record stores a skipped slot. A resolved row is reopened only if it was never filled.
func (r *SkippedSlotRepo) Record(ctx context.Context, s *domain.SkippedSlot) error {
	query := `
		INSERT INTO skipped_slots (slot, reason, attempts, run_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (slot) DO UPDATE SET
			reason = EXCLUDED.reason,
			attempts = skipped_slots.attempts + EXCLUDED.attempts,
			run_id = EXCLUDED.run_id
		WHERE skipped_slots.status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, int64(s.Slot), string(s.Reason), s.Attempts, s.RunID)
	if err != nil {
		return fmt.Errorf("failed to record skipped slot %d: %w", s.Slot, err)
	}
	return nil
}

type skippedRow struct {
	Slot       int64        `db:"slot"`
	Reason     string       `db:"reason"`
	Attempts   int          `db:"attempts"`
	RunID      string       `db:"run_id"`
	Status     string       `db:"status"`
	CreatedAt  time.Time    `db:"created_at"`
	ResolvedAt sql.NullTime `db:"resolved_at"`
}

func (r skippedRow) toDomain() *domain.SkippedSlot {
	s := &domain.SkippedSlot{
		Slot:      domain.Slot(r.Slot),
		Reason:    domain.SkipReason(r.Reason),
		Attempts:  r.Attempts,
		RunID:     r.RunID,
		Status:    domain.SkippedSlotStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
	if r.ResolvedAt.Valid {
		t := r.ResolvedAt.Time
		s.ResolvedAt = &t
	}
	return s
}

// Pending returns unresolved slots in ascending order.
func (r *SkippedSlotRepo) Pending(ctx context.Context, limit int) ([]*domain.SkippedSlot, error) {
	var rows []skippedRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT slot, reason, attempts, run_id, status, created_at, resolved_at
		FROM skipped_slots
		WHERE status = 'pending'
		ORDER BY slot
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list skipped slots: %w", err)
	}
	out := make([]*domain.SkippedSlot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// MarkResolved closes a skipped slot with the given status.
func (r *SkippedSlotRepo) MarkResolved(
	ctx context.Context,
	slot domain.Slot,
	status domain.SkippedSlotStatus,
) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE skipped_slots SET status = $2, resolved_at = now() WHERE slot = $1`,
		int64(slot), string(status))
	if err != nil {
		return fmt.Errorf("failed to resolve skipped slot %d: %w", slot, err)
	}
	return nil
}

// CountPending returns the number of unresolved slots.
func (r *SkippedSlotRepo) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM skipped_slots WHERE status = 'pending'`); err != nil {
		return 0, fmt.Errorf("failed to count skipped slots: %w", err)
	}
	return n, nil
}
