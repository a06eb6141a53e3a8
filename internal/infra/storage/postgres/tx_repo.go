package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// TxRepo implements storage.TransactionRepository using PostgreSQL.
type TxRepo struct {
	db *DB
}

// NewTxRepo creates a new PostgreSQL transaction repository.
func NewTxRepo(db *DB) *TxRepo {
	return &TxRepo{db: db}
}

// Upsert saves a transaction summary keyed by signature.
func (r *TxRepo) Upsert(ctx context.Context, tx *domain.TransactionSummary) error {
	query := `
		INSERT INTO transactions (signature, slot, is_error, fee_lamports, compute_units, first_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (signature) DO UPDATE SET
			slot = EXCLUDED.slot,
			is_error = EXCLUDED.is_error,
			fee_lamports = EXCLUDED.fee_lamports,
			compute_units = EXCLUDED.compute_units,
			first_error = EXCLUDED.first_error
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.Signature,
		int64(tx.Slot),
		tx.IsError,
		nullUint64(tx.FeeLamports),
		nullUint64(tx.ComputeUnits),
		nullString(tx.FirstError),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", tx.Signature, err)
	}
	return nil
}

type txRow struct {
	Signature    string         `db:"signature"`
	Slot         int64          `db:"slot"`
	IsError      bool           `db:"is_error"`
	FeeLamports  sql.NullInt64  `db:"fee_lamports"`
	ComputeUnits sql.NullInt64  `db:"compute_units"`
	FirstError   sql.NullString `db:"first_error"`
}

func (r txRow) toDomain() *domain.TransactionSummary {
	tx := &domain.TransactionSummary{
		Signature: r.Signature,
		Slot:      domain.Slot(r.Slot),
		IsError:   r.IsError,
	}
	if r.FeeLamports.Valid {
		v := uint64(r.FeeLamports.Int64)
		tx.FeeLamports = &v
	}
	if r.ComputeUnits.Valid {
		v := uint64(r.ComputeUnits.Int64)
		tx.ComputeUnits = &v
	}
	if r.FirstError.Valid {
		v := r.FirstError.String
		tx.FirstError = &v
	}
	return tx
}

const txColumns = `signature, slot, is_error, fee_lamports, compute_units, first_error`

// GetBySignature retrieves a transaction summary.
func (r *TxRepo) GetBySignature(ctx context.Context, signature string) (*domain.TransactionSummary, error) {
	var row txRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+txColumns+` FROM transactions WHERE signature = $1`, signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return row.toDomain(), nil
}

// GetBySlot retrieves all transactions of a slot.
func (r *TxRepo) GetBySlot(ctx context.Context, slot domain.Slot) ([]*domain.TransactionSummary, error) {
	var rows []txRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+txColumns+` FROM transactions WHERE slot = $1 ORDER BY signature`, int64(slot))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for slot %d: %w", slot, err)
	}
	out := make([]*domain.TransactionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
