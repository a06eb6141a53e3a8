package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SlotRange is an inclusive range of slots.
type SlotRange struct {
	Start Slot
	End   Slot
}

// String returns the range in "start-end" format.
func (r SlotRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Size returns the number of slots in the range.
func (r SlotRange) Size() uint64 {
	return uint64(r.End-r.Start) + 1
}

// Contains reports whether s lies in the range.
func (r SlotRange) Contains(s Slot) bool {
	return s >= r.Start && s <= r.End
}

// Split splits the range into chunks of at most maxSize slots.
func (r SlotRange) Split(maxSize uint64) []SlotRange {
	if maxSize == 0 || r.Size() <= maxSize {
		return []SlotRange{r}
	}

	var chunks []SlotRange
	current := r.Start
	for current <= r.End {
		chunkEnd := min(current+Slot(maxSize)-1, r.End)
		chunks = append(chunks, SlotRange{Start: current, End: chunkEnd})
		if chunkEnd == r.End {
			break
		}
		current = chunkEnd + 1
	}
	return chunks
}

// Touches reports whether two ranges overlap or are adjacent.
func (r SlotRange) Touches(other SlotRange) bool {
	return r.Start <= other.End+1 && other.Start <= r.End+1
}

// Union returns the smallest range covering both.
func (r SlotRange) Union(other SlotRange) SlotRange {
	return SlotRange{Start: min(r.Start, other.Start), End: max(r.End, other.End)}
}

// Without removes s from the range, returning zero, one or two remaining pieces.
func (r SlotRange) Without(s Slot) []SlotRange {
	if !r.Contains(s) {
		return []SlotRange{r}
	}
	var out []SlotRange
	if s > r.Start {
		out = append(out, SlotRange{Start: r.Start, End: s - 1})
	}
	if s < r.End {
		out = append(out, SlotRange{Start: s + 1, End: r.End})
	}
	return out
}

// MergeSlotRanges merges overlapping and adjacent ranges. The input is sorted in place.
func MergeSlotRanges(ranges []SlotRange) []SlotRange {
	if len(ranges) <= 1 {
		return ranges
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	merged := []SlotRange{ranges[0]}
	for _, current := range ranges[1:] {
		last := &merged[len(merged)-1]
		if last.Touches(current) {
			*last = last.Union(current)
		} else {
			merged = append(merged, current)
		}
	}
	return merged
}

// ParseSlotRange parses the "start-end" format produced by String.
func ParseSlotRange(s string) (SlotRange, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return SlotRange{}, fmt.Errorf("invalid range format: %s", s)
	}
	start, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil {
		return SlotRange{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := strconv.ParseUint(endStr, 10, 64)
	if err != nil {
		return SlotRange{}, fmt.Errorf("invalid end: %w", err)
	}
	if start > end {
		return SlotRange{}, fmt.Errorf("start > end: %d > %d", start, end)
	}
	return SlotRange{Start: Slot(start), End: Slot(end)}, nil
}
