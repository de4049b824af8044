// Package telemetry aggregates operational counters across the dispatch,
// lifecycle, and gateway paths and mirrors them into Prometheus.
package telemetry

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/supervisor"
)

// AgentStats are per-agent lifetime counters.
type AgentStats struct {
	Spawns   uint64 `json:"spawns"`
	Exits    uint64 `json:"exits"`
	Restarts uint64 `json:"restarts"`
	Faults   uint64 `json:"faults"`
}

// Snapshot is a point-in-time copy of all aggregate counters.
type Snapshot struct {
	Dispatches         uint64                          `json:"dispatches"`
	Denies             uint64                          `json:"denies"`
	BadFrames          uint64                          `json:"bad_frames"`
	Unsupported        uint64                          `json:"unsupported"`
	Restarts           uint64                          `json:"restarts"`
	Faults             uint64                          `json:"faults"`
	PolicyChanges      uint64                          `json:"policy_changes"`
	GatewayAttempts    uint64                          `json:"gateway_attempts"`
	GatewaySuccesses   uint64                          `json:"gateway_successes"`
	GatewayFallbacks   uint64                          `json:"gateway_fallbacks"`
	GatewayRateLimited uint64                          `json:"gateway_rate_limited"`
	ChainExhausted     uint64                          `json:"chain_exhausted"`
	Agents             map[protocol.AgentID]AgentStats `json:"agents"`
}

// Aggregator collects counters behind one mutex. The Prometheus mirror is
// optional; a nil metrics handle keeps everything in-process only.
type Aggregator struct {
	mu       sync.Mutex
	snap     Snapshot
	perAgent map[protocol.AgentID]*AgentStats
	metrics  *monitoring.Metrics
}

// New creates an empty aggregator. metrics may be nil.
func New(metrics *monitoring.Metrics) *Aggregator {
	return &Aggregator{
		perAgent: make(map[protocol.AgentID]*AgentStats),
		metrics:  metrics,
	}
}

func (a *Aggregator) agent(id protocol.AgentID) *AgentStats {
	st, ok := a.perAgent[id]
	if !ok {
		st = &AgentStats{}
		a.perAgent[id] = st
	}
	return st
}

// RecordDispatch counts one handled frame.
func (a *Aggregator) RecordDispatch(opcode, outcome string, duration time.Duration) {
	a.mu.Lock()
	a.snap.Dispatches++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.RecordDispatch(opcode, outcome, duration)
	}
}

// RecordDeny counts one policy denial.
func (a *Aggregator) RecordDeny(reason string) {
	a.mu.Lock()
	a.snap.Denies++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.RecordDeny(reason)
	}
}

// RecordBadFrame counts one malformed frame.
func (a *Aggregator) RecordBadFrame() {
	a.mu.Lock()
	a.snap.BadFrames++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.BadFrames.Inc()
	}
}

// RecordUnsupported counts one unknown opcode.
func (a *Aggregator) RecordUnsupported() {
	a.mu.Lock()
	a.snap.Unsupported++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.Unsupported.Inc()
	}
}

// RecordAudit counts one audit append.
func (a *Aggregator) RecordAudit() {
	if a.metrics != nil {
		a.metrics.AuditAppends.Inc()
	}
}

// RecordFault counts one classified fault and its action.
func (a *Aggregator) RecordFault(agent protocol.AgentID, kind, action string) {
	a.mu.Lock()
	a.snap.Faults++
	a.agent(agent).Faults++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.RecordFault(kind, action)
	}
}

// RecordPolicyPatch counts one applied policy patch.
func (a *Aggregator) RecordPolicyPatch(kind string) {
	a.mu.Lock()
	a.snap.PolicyChanges++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.PolicyPatches.WithLabelValues(kind).Inc()
	}
}

// RecordCompliance counts one compliance event by risk.
func (a *Aggregator) RecordCompliance(risk string) {
	if a.metrics != nil {
		a.metrics.ComplianceEvents.WithLabelValues(risk).Inc()
	}
}

// RecordGatewayAttempt counts one backend attempt with its latency.
func (a *Aggregator) RecordGatewayAttempt(backend, outcome string, duration time.Duration) {
	a.mu.Lock()
	a.snap.GatewayAttempts++
	switch outcome {
	case "ok":
		a.snap.GatewaySuccesses++
	default:
		a.snap.GatewayFallbacks++
	}
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.RecordGatewayAttempt(backend, outcome, duration)
	}
}

// RecordGatewayRateLimited counts one limiter rejection.
func (a *Aggregator) RecordGatewayRateLimited() {
	a.mu.Lock()
	a.snap.GatewayRateLimited++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.GatewayRateLimited.Inc()
	}
}

// RecordChainExhausted counts one request that failed every backend.
func (a *Aggregator) RecordChainExhausted() {
	a.mu.Lock()
	a.snap.ChainExhausted++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.ChainExhausted.Inc()
	}
}

// HandleLifecycle is the supervisor listener: it keeps per-agent counters
// and the active-agents gauge in step with lifecycle transitions.
func (a *Aggregator) HandleLifecycle(ev supervisor.Event) {
	a.mu.Lock()
	switch ev.Kind {
	case supervisor.EventSpawned:
		a.agent(ev.AgentID).Spawns++
	case supervisor.EventExited, supervisor.EventTerminated:
		a.agent(ev.AgentID).Exits++
	case supervisor.EventRestarted:
		a.snap.Restarts++
		a.agent(ev.AgentID).Restarts++
	}
	a.mu.Unlock()

	if a.metrics == nil {
		return
	}
	switch ev.Kind {
	case supervisor.EventSpawned:
		a.metrics.SpawnsTotal.Inc()
		a.metrics.AgentsActive.Inc()
	case supervisor.EventExited:
		a.metrics.RecordExit(true)
		a.metrics.AgentsActive.Dec()
	case supervisor.EventCrashed:
		a.metrics.RecordExit(false)
	case supervisor.EventRestarted:
		a.metrics.RestartsTotal.Inc()
	case supervisor.EventTerminated:
		a.metrics.AgentsActive.Dec()
	case supervisor.EventEscalated:
		a.metrics.EscalationsOpened.Inc()
	}
}

// Snapshot returns a copy of every counter.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.snap
	out.Agents = make(map[protocol.AgentID]AgentStats, len(a.perAgent))
	for id, st := range a.perAgent {
		out.Agents[id] = *st
	}
	return out
}
