package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// BlockRepo implements storage.BlockRepository using PostgreSQL.
type BlockRepo struct {
	db *DB
}

// NewBlockRepo creates a new PostgreSQL block repository.
func NewBlockRepo(db *DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// Upsert saves a block summary, replacing any earlier version of the slot.
func (r *BlockRepo) Upsert(ctx context.Context, block *domain.BlockSummary) error {
	query := `
		INSERT INTO blocks (slot, parent_slot, blockhash, block_time, tx_count, err_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slot) DO UPDATE SET
			parent_slot = EXCLUDED.parent_slot,
			blockhash = EXCLUDED.blockhash,
			block_time = EXCLUDED.block_time,
			tx_count = EXCLUDED.tx_count,
			err_count = EXCLUDED.err_count,
			indexed_at = now()
	`

	_, err := r.db.ExecContext(ctx, query,
		int64(block.Slot),
		int64(block.ParentSlot),
		block.Blockhash,
		nullInt64(block.BlockTime),
		block.TxCount,
		block.ErrCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert block %d: %w", block.Slot, err)
	}
	return nil
}

type blockRow struct {
	Slot       int64         `db:"slot"`
	ParentSlot int64         `db:"parent_slot"`
	Blockhash  string        `db:"blockhash"`
	BlockTime  sql.NullInt64 `db:"block_time"`
	TxCount    int           `db:"tx_count"`
	ErrCount   int           `db:"err_count"`
}

func (r blockRow) toDomain() *domain.BlockSummary {
	b := &domain.BlockSummary{
		Slot:       domain.Slot(r.Slot),
		ParentSlot: domain.Slot(r.ParentSlot),
		Blockhash:  r.Blockhash,
		TxCount:    r.TxCount,
		ErrCount:   r.ErrCount,
	}
	if r.BlockTime.Valid {
		t := r.BlockTime.Int64
		b.BlockTime = &t
	}
	return b
}

// GetBySlot retrieves a block summary by slot.
func (r *BlockRepo) GetBySlot(ctx context.Context, slot domain.Slot) (*domain.BlockSummary, error) {
	var row blockRow
	err := r.db.GetContext(ctx, &row, `
		SELECT slot, parent_slot, blockhash, block_time, tx_count, err_count
		FROM blocks WHERE slot = $1`, int64(slot))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", slot, err)
	}
	return row.toDomain(), nil
}

// Count returns the number of stored blocks.
func (r *BlockRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM blocks`); err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return n, nil
}

// FindGaps returns the runs of slots in rng without a stored block.
// The two sentinel rows make gaps touching either end of rng visible to LEAD.
func (r *BlockRepo) FindGaps(ctx context.Context, rng domain.SlotRange) ([]domain.SlotRange, error) {
	query := `
		WITH bounded AS (
			SELECT slot FROM blocks WHERE slot BETWEEN $1 AND $2
			UNION ALL SELECT $1::bigint - 1
			UNION ALL SELECT $2::bigint + 1
		), numbered AS (
			SELECT slot, LEAD(slot) OVER (ORDER BY slot) AS next_slot FROM bounded
		)
		SELECT slot + 1 AS start_slot, next_slot - 1 AS end_slot
		FROM numbered WHERE next_slot - slot > 1
		ORDER BY start_slot
	`

	var rows []struct {
		Start int64 `db:"start_slot"`
		End   int64 `db:"end_slot"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, int64(rng.Start), int64(rng.End)); err != nil {
		return nil, fmt.Errorf("failed to find gaps in %s: %w", rng, err)
	}

	gaps := make([]domain.SlotRange, 0, len(rows))
	for _, row := range rows {
		gaps = append(gaps, domain.SlotRange{Start: domain.Slot(row.Start), End: domain.Slot(row.End)})
	}
	return gaps, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullUint64(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
