package domain

import "sort"

// TargetProgramSet is the set of program ids the observer tracks.
// An empty set means every program is tracked.
type TargetProgramSet map[string]struct{}

// NewTargetProgramSet builds a set from ids. Ids are compared exactly; base58 is case-sensitive.
func NewTargetProgramSet(ids ...string) TargetProgramSet {
	s := make(TargetProgramSet, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		s[id] = struct{}{}
	}
	return s
}

func (s TargetProgramSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in sorted order.
func (s TargetProgramSet) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
