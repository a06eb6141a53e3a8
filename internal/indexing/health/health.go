// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// ProbeHealth is the last subscription probe outcome.
type ProbeHealth struct {
	At       time.Time `json:"at"`
	Events   int       `json:"events"`
	LastSlot *uint64   `json:"last_slot,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus   SystemStatus               `json:"system_status"`
	Running        bool                       `json:"running"`
	CursorSlot     uint64                     `json:"cursor_slot"`
	HeadSlot       uint64                     `json:"head_slot"`
	SlotLag        int64                      `json:"slot_lag"`
	SlotsPerSecond float64                    `json:"slots_per_second"`
	SkippedPending int64                      `json:"skipped_pending"`
	LastProgress   *time.Time                 `json:"last_progress,omitempty"`
	LastError      string                     `json:"last_error,omitempty"`
	LastProbe      *ProbeHealth               `json:"last_probe,omitempty"`
	Components     map[string]ComponentHealth `json:"components"`
}

// Thresholds decide when lag or a stalled cursor degrades the status.
type Thresholds struct {
	LagDegraded   int64
	LagCritical   int64
	StallDegraded time.Duration
	StallCritical time.Duration
}

// DefaultThresholds returns thresholds suited to a ~400ms slot time.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LagDegraded:   150,
		LagCritical:   1500,
		StallDegraded: time.Minute,
		StallCritical: 5 * time.Minute,
	}
}
