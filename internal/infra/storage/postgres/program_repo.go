package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/solwatch/internal/core/domain"
)

// ProgramRepo implements storage.ProgramRepository using PostgreSQL.
type ProgramRepo struct {
	db *DB
}

// NewProgramRepo creates a new PostgreSQL association repository.
func NewProgramRepo(db *DB) *ProgramRepo {
	return &ProgramRepo{db: db}
}

// Associate inserts all pairs in one statement. Existing pairs are left untouched.
func (r *ProgramRepo) Associate(ctx context.Context, assocs []domain.ProgramAssociation) error {
	if len(assocs) == 0 {
		return nil
	}

	sigs := make([]string, len(assocs))
	slots := make([]int64, len(assocs))
	programs := make([]string, len(assocs))
	for i, a := range assocs {
		sigs[i] = a.Signature
		slots[i] = int64(a.Slot)
		programs[i] = a.ProgramID
	}

	query := `
		INSERT INTO transaction_programs (signature, slot, program_id)
		SELECT * FROM unnest($1::text[], $2::bigint[], $3::text[])
		ON CONFLICT (signature, program_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(sigs), pq.Array(slots), pq.Array(programs)); err != nil {
		return fmt.Errorf("failed to insert %d program associations: %w", len(assocs), err)
	}
	return nil
}

// ProgramsFor lists program ids associated with signature.
func (r *ProgramRepo) ProgramsFor(ctx context.Context, signature string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT program_id FROM transaction_programs WHERE signature = $1 ORDER BY program_id`, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	return ids, nil
}
