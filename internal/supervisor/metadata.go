package supervisor

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/policy"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// PID identifies a live process slot handed out by the process manager.
type PID uint32

// AgentSpec describes an agent to spawn. Specs are inputs only; once the
// agent is running its metadata is the source of truth.
type AgentSpec struct {
	Name         string              `json:"name"`
	Capabilities []policy.Capability `json:"capabilities"`
	Scope        policy.Scope        `json:"scope"`
	AutoRestart  bool                `json:"auto_restart"`
	MaxRestarts  int                 `json:"max_restarts"`
}

// NewSpec starts a spec with restart disabled and no grants.
func NewSpec(name string) AgentSpec {
	return AgentSpec{Name: name}
}

// WithCapabilities sets the initial grant set.
func (s AgentSpec) WithCapabilities(caps ...policy.Capability) AgentSpec {
	s.Capabilities = append([]policy.Capability(nil), caps...)
	return s
}

// WithScope sets the resource scope.
func (s AgentSpec) WithScope(scope policy.Scope) AgentSpec {
	s.Scope = scope
	return s
}

// WithAutoRestart enables crash restarts up to the given budget.
func (s AgentSpec) WithAutoRestart(maxRestarts int) AgentSpec {
	s.AutoRestart = true
	s.MaxRestarts = maxRestarts
	return s
}

// AgentMetadata is the supervisor's view of one agent. Values handed out
// of the supervisor are copies; callers cannot mutate registry state.
type AgentMetadata struct {
	AgentID            protocol.AgentID    `json:"agent_id"`
	PID                PID                 `json:"pid"`
	Name               string              `json:"name"`
	Capabilities       []policy.Capability `json:"capabilities"`
	Scope              policy.Scope        `json:"scope"`
	AutoRestart        bool                `json:"auto_restart"`
	MaxRestarts        int                 `json:"max_restarts"`
	RestartCount       int                 `json:"restart_count"`
	SpawnTimeMicros    uint64              `json:"spawn_time_micros"`
	LastActivityMicros uint64              `json:"last_activity_micros"`
	Active             bool                `json:"active"`
}

// WithRestartCount derives restarted metadata: identity, grants, and scope
// carry over; the restart count is replaced and the spawn time reset.
func (m AgentMetadata) WithRestartCount(n int, spawnMicros uint64) AgentMetadata {
	m.Capabilities = append([]policy.Capability(nil), m.Capabilities...)
	m.RestartCount = n
	m.SpawnTimeMicros = spawnMicros
	m.LastActivityMicros = spawnMicros
	m.Active = true
	return m
}

// HasExceededRestarts reports whether the restart budget is spent.
func (m AgentMetadata) HasExceededRestarts() bool {
	return m.RestartCount >= m.MaxRestarts
}

// Uptime is the time since the last spawn. Saturates at zero if the clock
// reads earlier than the spawn time.
func (m AgentMetadata) Uptime(nowMicros uint64) time.Duration {
	if nowMicros < m.SpawnTimeMicros {
		return 0
	}
	return time.Duration(nowMicros-m.SpawnTimeMicros) * time.Microsecond
}

func (m AgentMetadata) clone() AgentMetadata {
	m.Capabilities = append([]policy.Capability(nil), m.Capabilities...)
	return m
}
