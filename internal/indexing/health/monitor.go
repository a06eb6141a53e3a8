package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/solwatch/internal/indexing/indexer"
	"github.com/vietddude/solwatch/internal/infra/storage"
)

// StatusSource reports the indexing loop state.
type StatusSource interface {
	GetStatus() indexer.Status
}

// Pinger checks a dependency is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	loop       StatusSource
	skipped    storage.SkippedSlotRepository // optional
	deps       map[string]Pinger
	thresholds Thresholds
	cacheTTL   time.Duration
	now        func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor.
func NewMonitor(loop StatusSource, skipped storage.SkippedSlotRepository, thresholds Thresholds) *Monitor {
	return &Monitor{
		loop:       loop,
		skipped:    skipped,
		deps:       make(map[string]Pinger),
		thresholds: thresholds,
		cacheTTL:   5 * time.Second,
		now:        time.Now,
	}
}

// AddDependency registers a dependency checked on every report.
func (m *Monitor) AddDependency(name string, p Pinger) *Monitor {
	m.deps[name] = p
	return m
}

// CheckHealth builds a report, reusing the previous one for a few seconds.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < m.cacheTTL {
		return *m.lastReport
	}

	st := m.loop.GetStatus()
	report := HealthReport{
		SystemStatus:   StatusHealthy,
		Running:        st.Running,
		CursorSlot:     uint64(st.Cursor),
		HeadSlot:       uint64(st.Head),
		SlotLag:        st.Lag,
		SlotsPerSecond: st.SlotsPerSecond,
		LastError:      st.LastError,
		Components:     make(map[string]ComponentHealth),
	}
	if !st.LastProgress.IsZero() {
		t := st.LastProgress
		report.LastProgress = &t
	}
	if p := st.LastProbe; p != nil {
		report.LastProbe = &ProbeHealth{At: p.At, Events: p.Events, Error: p.Error}
		if p.Last != nil {
			s := uint64(*p.Last)
			report.LastProbe.LastSlot = &s
		}
	}

	indexerHealth := m.evaluateLoop(st)
	report.Components["indexer"] = indexerHealth
	report.SystemStatus = worse(report.SystemStatus, indexerHealth.Status)

	if m.skipped != nil {
		if n, err := m.skipped.CountPending(ctx); err == nil {
			report.SkippedPending = n
		}
	}

	for name, dep := range m.deps {
		c := ComponentHealth{Status: StatusHealthy}
		if err := dep.Health(ctx); err != nil {
			c = ComponentHealth{Status: StatusCritical, Detail: err.Error()}
		}
		report.Components[name] = c
		report.SystemStatus = worse(report.SystemStatus, c.Status)
	}

	m.lastCheck = m.now()
	m.lastReport = &report
	return report
}

func (m *Monitor) evaluateLoop(st indexer.Status) ComponentHealth {
	if !st.Running {
		return ComponentHealth{Status: StatusCritical, Detail: "indexing loop is not running"}
	}

	// An idle loop at head is healthy however long ago it last advanced.
	var stalled time.Duration
	if st.Lag > 0 && !st.LastProgress.IsZero() {
		stalled = m.now().Sub(st.LastProgress)
	}

	t := m.thresholds
	switch {
	case st.Lag > t.LagCritical:
		return ComponentHealth{Status: StatusCritical, Detail: fmt.Sprintf("lag %d slots", st.Lag)}
	case stalled > t.StallCritical:
		return ComponentHealth{Status: StatusCritical, Detail: fmt.Sprintf("no progress for %s", stalled.Round(time.Second))}
	case st.Lag > t.LagDegraded:
		return ComponentHealth{Status: StatusDegraded, Detail: fmt.Sprintf("lag %d slots", st.Lag)}
	case stalled > t.StallDegraded:
		return ComponentHealth{Status: StatusDegraded, Detail: fmt.Sprintf("no progress for %s", stalled.Round(time.Second))}
	}
	return ComponentHealth{Status: StatusHealthy}
}
