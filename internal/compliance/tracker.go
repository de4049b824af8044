// Package compliance keeps a bounded trail of risk-classified events for
// operator review. The ring is lossy; per-level totals are durable.
package compliance

import (
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/id"
)

// RiskLevel classifies how concerning an event is.
type RiskLevel string

const (
	RiskMinimal      RiskLevel = "minimal"
	RiskLimited      RiskLevel = "limited"
	RiskHigh         RiskLevel = "high"
	RiskUnacceptable RiskLevel = "unacceptable"
)

var riskSeverity = map[RiskLevel]int{
	RiskMinimal:      0,
	RiskLimited:      1,
	RiskHigh:         2,
	RiskUnacceptable: 3,
}

// Severity orders risk levels; higher is worse.
func (r RiskLevel) Severity() int {
	return riskSeverity[r]
}

// ParseRiskLevel validates a risk name from config.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(s)
	if _, ok := riskSeverity[r]; !ok {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

// Event is one recorded compliance observation.
type Event struct {
	ID              string           `json:"id"`
	AgentID         protocol.AgentID `json:"agent_id"`
	Kind            string           `json:"kind"`
	Detail          string           `json:"detail"`
	Risk            RiskLevel        `json:"risk"`
	TimestampMicros uint64           `json:"timestamp_micros"`
}

// ringSize bounds the retained event window.
const ringSize = 256

// Tracker records compliance events into a fixed ring and keeps durable
// per-level counts that survive ring overwrites.
type Tracker struct {
	mu       sync.Mutex
	ring     [ringSize]Event
	next     int
	count    int
	totals   map[RiskLevel]uint64
	clock    clock.Clock
	observer func(Event)
}

// NewTracker creates an empty tracker on the given clock.
func NewTracker(clk clock.Clock) *Tracker {
	return &Tracker{
		totals: make(map[RiskLevel]uint64, 4),
		clock:  clk,
	}
}

// Record appends an event, stamping its id and time. The oldest entry is
// overwritten once the ring is full; totals are never lost.
func (t *Tracker) Record(agent protocol.AgentID, kind, detail string, risk RiskLevel) Event {
	ev := Event{
		ID:              string(id.NewEventID()),
		AgentID:         agent,
		Kind:            kind,
		Detail:          detail,
		Risk:            risk,
		TimestampMicros: t.clock.NowMicros(),
	}

	t.mu.Lock()
	t.ring[t.next] = ev
	t.next = (t.next + 1) % ringSize
	if t.count < ringSize {
		t.count++
	}
	t.totals[risk]++
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer(ev)
	}
	return ev
}

// Observe sets a callback invoked for every recorded event. Wire it at
// startup; it runs on the recording goroutine.
func (t *Tracker) Observe(fn func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = fn
}

// Recent returns up to n events, most recent first.
func (t *Tracker) Recent(n int) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > t.count {
		n = t.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (t.next - 1 - i + ringSize) % ringSize
		out = append(out, t.ring[idx])
	}
	return out
}

// Totals returns the durable per-level counts.
func (t *Tracker) Totals() map[RiskLevel]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[RiskLevel]uint64, len(t.totals))
	for k, v := range t.totals {
		out[k] = v
	}
	return out
}

// Report summarizes retained events inside the trailing window.
type Report struct {
	WindowMicros uint64               `json:"window_micros"`
	Counts       map[RiskLevel]uint64 `json:"counts"`
	Total        uint64               `json:"total"`
}

// Report counts retained events newer than now minus window. Events the
// ring has already dropped are not represented; Totals covers those.
func (t *Tracker) Report(window time.Duration) Report {
	now := t.clock.NowMicros()
	cutoff := uint64(0)
	if w := uint64(window.Microseconds()); w < now {
		cutoff = now - w
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rep := Report{
		WindowMicros: uint64(window.Microseconds()),
		Counts:       make(map[RiskLevel]uint64, 4),
	}
	for i := 0; i < t.count; i++ {
		idx := (t.next - 1 - i + ringSize) % ringSize
		ev := t.ring[idx]
		if ev.TimestampMicros < cutoff {
			break
		}
		rep.Counts[ev.Risk]++
		rep.Total++
	}
	return rep
}
