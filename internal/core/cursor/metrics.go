package cursor

import (
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
)

// slotRecord holds timing data for an advanced slot.
type slotRecord struct {
	Slot       domain.Slot
	AdvancedAt time.Time
}

// Metrics holds cursor throughput data.
type Metrics struct {
	SlotsPerSecond  float64
	AverageSlotTime time.Duration
	LastAdvanceAt   *time.Time
	LastSkipped     *domain.Slot
	SkippedCount    int
}

// MetricsCollector tracks cursor throughput over a sliding window.
type MetricsCollector struct {
	windowSize   int          // number of advances to track
	records      []slotRecord // ring buffer, oldest first
	skippedCount int
	lastSkipped  *domain.Slot
}

// NewMetricsCollector creates a collector keeping the last windowSize advances.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize < 2 {
		windowSize = 2
	}
	return &MetricsCollector{
		windowSize: windowSize,
		records:    make([]slotRecord, 0, windowSize),
	}
}

// RecordSlot records an advance.
func (mc *MetricsCollector) RecordSlot(slot domain.Slot, at time.Time) {
	record := slotRecord{Slot: slot, AdvancedAt: at}

	if len(mc.records) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.records, mc.records[1:])
		mc.records[len(mc.records)-1] = record
	} else {
		mc.records = append(mc.records, record)
	}
}

// RecordSkip counts a slot advanced past without a block.
func (mc *MetricsCollector) RecordSkip(slot domain.Slot) {
	mc.skippedCount++
	s := slot
	mc.lastSkipped = &s
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{
		SkippedCount: mc.skippedCount,
		LastSkipped:  mc.lastSkipped,
	}

	if n := len(mc.records); n > 0 {
		last := mc.records[n-1].AdvancedAt
		m.LastAdvanceAt = &last
	}

	// Slots per second counts slots covered, not advances, since one
	// advance can follow several empty slots.
	if len(mc.records) >= 2 {
		first := mc.records[0]
		last := mc.records[len(mc.records)-1]
		duration := last.AdvancedAt.Sub(first.AdvancedAt)

		if duration > 0 && last.Slot > first.Slot {
			slots := float64(last.Slot - first.Slot)
			m.SlotsPerSecond = slots / duration.Seconds()
			m.AverageSlotTime = time.Duration(float64(duration) / slots)
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.records = mc.records[:0]
	mc.skippedCount = 0
	mc.lastSkipped = nil
}
