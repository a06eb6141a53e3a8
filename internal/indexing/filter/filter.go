package filter

import "github.com/vietddude/solwatch/internal/core/domain"

// Filter decides which program ids get an association row
type Filter interface {
	// Allows reports whether associations to programID should be written
	Allows(programID string) bool
}

// Associations keeps the program ids of one transaction that f allows.
// programIDs is expected deduplicated and sorted; the order is preserved.
func Associations(f Filter, tx domain.TransactionSummary, programIDs []string) []domain.ProgramAssociation {
	out := make([]domain.ProgramAssociation, 0, len(programIDs))
	for _, id := range programIDs {
		if !f.Allows(id) {
			continue
		}
		out = append(out, domain.ProgramAssociation{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			ProgramID: id,
		})
	}
	return out
}
