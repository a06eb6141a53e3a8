package filter

import (
	"github.com/vietddude/solwatch/internal/core/domain"
)

// MemoryFilter implements Filter with an in-memory set fixed at construction.
// Program ids are base58 and compared exactly.
type MemoryFilter struct {
	programs domain.TargetProgramSet
}

// NewMemoryFilter creates a filter tracking targets. An empty set allows every program.
func NewMemoryFilter(targets domain.TargetProgramSet) *MemoryFilter {
	programs := make(domain.TargetProgramSet, len(targets))
	for id := range targets {
		programs[id] = struct{}{}
	}
	return &MemoryFilter{programs: programs}
}

// Allows reports whether programID is tracked, or true when nothing is tracked.
func (f *MemoryFilter) Allows(programID string) bool {
	if len(f.programs) == 0 {
		return true
	}
	return f.programs.Contains(programID)
}
