package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/compliance"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/fault"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/policy"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

// ErrUnknownPID reports an exit notification for a process the supervisor
// is not tracking.
var ErrUnknownPID = errors.New("unknown pid")

// ErrAgentIDsExhausted reports that no free agent identity remains.
var ErrAgentIDsExhausted = errors.New("agent ids exhausted")

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventSpawned       EventKind = "spawned"
	EventExited        EventKind = "exited"
	EventCrashed       EventKind = "crashed"
	EventRestarted     EventKind = "restarted"
	EventSuspended     EventKind = "suspended"
	EventTerminated    EventKind = "terminated"
	EventEscalated     EventKind = "escalated"
	EventPolicyChanged EventKind = "policy_changed"
)

// Event is one lifecycle transition as seen by listeners.
type Event struct {
	Kind    EventKind        `json:"kind"`
	AgentID protocol.AgentID `json:"agent_id"`
	PID     PID              `json:"pid"`
	Detail  string           `json:"detail,omitempty"`
}

// Listener observes lifecycle events. Listeners run on the caller's
// goroutine and must not call back into the supervisor.
type Listener func(Event)

// ProcessManager starts and stops the underlying processes. The supervisor
// never touches processes directly.
type ProcessManager interface {
	Start(ctx context.Context, name string) (PID, error)
	Stop(ctx context.Context, pid PID) error
}

// Supervisor owns the agent registry and drives every lifecycle
// transition: spawn, exit, crash recovery, suspension, and termination.
type Supervisor struct {
	mu     sync.RWMutex
	agents map[protocol.AgentID]*AgentMetadata
	pids   map[PID]protocol.AgentID
	nextID protocol.AgentID
	deps   *DepGraph

	procs    ProcessManager
	engine   *policy.Engine
	recovery *fault.Policy
	reviews  *fault.ReviewQueue
	tracker  *compliance.Tracker
	clock    clock.Clock
	logger   *logging.Logger

	listenerMu sync.RWMutex
	listeners  []Listener

	defaultMaxRestarts int
}

// Options carries the supervisor's collaborators.
type Options struct {
	Processes          ProcessManager
	Engine             *policy.Engine
	Recovery           *fault.Policy
	Reviews            *fault.ReviewQueue
	Tracker            *compliance.Tracker
	Clock              clock.Clock
	Logger             *logging.Logger
	DefaultMaxRestarts int
}

// New creates a supervisor with an empty registry.
func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Recovery == nil {
		opts.Recovery = fault.DefaultPolicy()
	}
	return &Supervisor{
		agents:             make(map[protocol.AgentID]*AgentMetadata),
		pids:               make(map[PID]protocol.AgentID),
		nextID:             1,
		deps:               NewDepGraph(),
		procs:              opts.Processes,
		engine:             opts.Engine,
		recovery:           opts.Recovery,
		reviews:            opts.Reviews,
		tracker:            opts.Tracker,
		clock:              opts.Clock,
		logger:             opts.Logger,
		defaultMaxRestarts: opts.DefaultMaxRestarts,
	}
}

// Subscribe registers a lifecycle listener.
func (s *Supervisor) Subscribe(l Listener) {
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenerMu.Unlock()
}

func (s *Supervisor) publish(ev Event) {
	s.listenerMu.RLock()
	listeners := s.listeners
	s.listenerMu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

// Spawn starts a process for the spec, allocates an agent identity,
// installs the grant set, and registers the agent as active.
func (s *Supervisor) Spawn(ctx context.Context, spec AgentSpec) (AgentMetadata, error) {
	id, err := s.allocateID()
	if err != nil {
		return AgentMetadata{}, err
	}

	pid, err := s.procs.Start(ctx, spec.Name)
	if err != nil {
		return AgentMetadata{}, fmt.Errorf("spawn %s: %w", spec.Name, err)
	}

	maxRestarts := spec.MaxRestarts
	if spec.AutoRestart && maxRestarts == 0 {
		maxRestarts = s.defaultMaxRestarts
	}
	now := s.clock.NowMicros()
	meta := AgentMetadata{
		AgentID:            id,
		PID:                pid,
		Name:               spec.Name,
		Capabilities:       append([]policy.Capability(nil), spec.Capabilities...),
		Scope:              spec.Scope,
		AutoRestart:        spec.AutoRestart,
		MaxRestarts:        maxRestarts,
		SpawnTimeMicros:    now,
		LastActivityMicros: now,
		Active:             true,
	}

	s.engine.Register(id, meta.Capabilities, meta.Scope)

	s.mu.Lock()
	stored := meta.clone()
	s.agents[id] = &stored
	s.pids[pid] = id
	s.mu.Unlock()

	s.logger.Info("agent spawned",
		zap.Uint16("agent_id", uint16(id)),
		zap.Uint32("pid", uint32(pid)),
		zap.String("name", spec.Name),
	)
	if s.tracker != nil {
		s.tracker.Record(id, "spawn", spec.Name, compliance.RiskMinimal)
	}
	s.publish(Event{Kind: EventSpawned, AgentID: id, PID: pid, Detail: spec.Name})
	return meta, nil
}

func (s *Supervisor) allocateID() (protocol.AgentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.nextID
	for {
		id := s.nextID
		s.nextID++
		if s.nextID == 0 {
			s.nextID = 1
		}
		if _, taken := s.agents[id]; !taken && id != 0 {
			return id, nil
		}
		if s.nextID == start {
			return 0, ErrAgentIDsExhausted
		}
	}
}

// OnProcessExit handles a process death report. A zero exit code is a
// clean exit and removes the agent; anything else is a crash routed
// through fault recovery.
func (s *Supervisor) OnProcessExit(ctx context.Context, pid PID, exitCode int) error {
	s.mu.RLock()
	id, ok := s.pids[pid]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("pid %d: %w", pid, ErrUnknownPID)
	}

	if exitCode == 0 {
		s.remove(id)
		s.logger.Info("agent exited", zap.Uint16("agent_id", uint16(id)))
		s.publish(Event{Kind: EventExited, AgentID: id, PID: pid})
		s.cascade(ctx, id, "exited")
		return nil
	}

	s.publish(Event{Kind: EventCrashed, AgentID: id, PID: pid, Detail: fmt.Sprintf("exit code %d", exitCode)})
	return s.HandleFault(ctx, fault.Fault{
		AgentID: id,
		Kind:    fault.Crash,
		Detail:  fmt.Sprintf("exit code %d", exitCode),
	})
}

// HandleFault resolves the recovery action for a fault and carries it out.
func (s *Supervisor) HandleFault(ctx context.Context, f fault.Fault) error {
	s.mu.RLock()
	meta, ok := s.agents[f.AgentID]
	var snapshot AgentMetadata
	if ok {
		snapshot = meta.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("agent %d: %w", f.AgentID, policy.ErrUnknownAgent)
	}

	action := s.recovery.ActionFor(f.Kind, snapshot.RestartCount, snapshot.MaxRestarts)
	if action == fault.ActionRestart && !snapshot.AutoRestart {
		action = fault.ActionTerminate
	}

	s.logger.Warn("fault detected",
		zap.Uint16("agent_id", uint16(f.AgentID)),
		zap.String("kind", string(f.Kind)),
		zap.String("action", string(action)),
		zap.String("detail", f.Detail),
	)

	switch action {
	case fault.ActionRestart:
		return s.restart(ctx, snapshot)
	case fault.ActionSuspend:
		return s.Suspend(ctx, f.AgentID, f.Detail)
	case fault.ActionTerminate:
		return s.Terminate(ctx, f.AgentID, f.Detail)
	case fault.ActionEscalate:
		s.escalate(f)
		return nil
	default:
		return fmt.Errorf("unhandled recovery action %q", action)
	}
}

// restart re-spawns from derived metadata. Identity, grants, and scope are
// preserved; only the restart count and spawn time change.
func (s *Supervisor) restart(ctx context.Context, old AgentMetadata) error {
	pid, err := s.procs.Start(ctx, old.Name)
	if err != nil {
		// The process is gone and could not come back; give up on it.
		terr := s.Terminate(ctx, old.AgentID, fmt.Sprintf("restart failed: %v", err))
		if terr != nil {
			return terr
		}
		return fmt.Errorf("restart agent %d: %w", old.AgentID, err)
	}

	next := old.WithRestartCount(old.RestartCount+1, s.clock.NowMicros())
	next.PID = pid

	s.mu.Lock()
	delete(s.pids, old.PID)
	stored := next.clone()
	s.agents[next.AgentID] = &stored
	s.pids[pid] = next.AgentID
	s.mu.Unlock()

	s.logger.Info("agent restarted",
		zap.Uint16("agent_id", uint16(next.AgentID)),
		zap.Int("restart_count", next.RestartCount),
	)
	s.publish(Event{Kind: EventRestarted, AgentID: next.AgentID, PID: pid,
		Detail: fmt.Sprintf("restart %d of %d", next.RestartCount, next.MaxRestarts)})
	return nil
}

// Suspend stops the process but keeps the registry entry. A suspended
// agent stays registered and can be resumed by the operator.
func (s *Supervisor) Suspend(ctx context.Context, id protocol.AgentID, reason string) error {
	s.mu.Lock()
	meta, ok := s.agents[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("agent %d: %w", id, policy.ErrUnknownAgent)
	}
	pid := meta.PID
	meta.Active = false
	s.mu.Unlock()

	if err := s.procs.Stop(ctx, pid); err != nil {
		s.logger.Warn("stop during suspend failed", zap.Uint32("pid", uint32(pid)), zap.Error(err))
	}
	if s.tracker != nil {
		s.tracker.Record(id, "suspend", reason, compliance.RiskLimited)
	}
	s.publish(Event{Kind: EventSuspended, AgentID: id, PID: pid, Detail: reason})
	return nil
}

// Resume reactivates a suspended agent with a fresh process.
func (s *Supervisor) Resume(ctx context.Context, id protocol.AgentID) error {
	s.mu.RLock()
	meta, ok := s.agents[id]
	var snapshot AgentMetadata
	if ok {
		snapshot = meta.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("agent %d: %w", id, policy.ErrUnknownAgent)
	}
	if snapshot.Active {
		return nil
	}

	pid, err := s.procs.Start(ctx, snapshot.Name)
	if err != nil {
		return fmt.Errorf("resume agent %d: %w", id, err)
	}

	s.mu.Lock()
	if meta, ok := s.agents[id]; ok {
		delete(s.pids, meta.PID)
		meta.PID = pid
		meta.Active = true
		meta.LastActivityMicros = s.clock.NowMicros()
		s.pids[pid] = id
	}
	s.mu.Unlock()

	s.publish(Event{Kind: EventSpawned, AgentID: id, PID: pid, Detail: "resumed"})
	return nil
}

// Terminate removes the agent for good: process stopped, grants revoked,
// registry entry deleted. Terminated identities are never resurrected;
// bringing the workload back requires an explicit new spawn.
func (s *Supervisor) Terminate(ctx context.Context, id protocol.AgentID, reason string) error {
	s.mu.RLock()
	meta, ok := s.agents[id]
	var pid PID
	if ok {
		pid = meta.PID
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("agent %d: %w", id, policy.ErrUnknownAgent)
	}

	if err := s.procs.Stop(ctx, pid); err != nil {
		s.logger.Warn("stop during terminate failed", zap.Uint32("pid", uint32(pid)), zap.Error(err))
	}
	s.remove(id)

	s.logger.Info("agent terminated",
		zap.Uint16("agent_id", uint16(id)),
		zap.String("reason", reason),
	)
	if s.tracker != nil {
		s.tracker.Record(id, "terminate", reason, compliance.RiskHigh)
	}
	s.publish(Event{Kind: EventTerminated, AgentID: id, PID: pid, Detail: reason})
	s.cascade(ctx, id, "terminated")
	return nil
}

// cascade takes down every agent whose required dependency just went away,
// then forgets the departed agent's edges.
func (s *Supervisor) cascade(ctx context.Context, id protocol.AgentID, cause string) {
	dependents := s.deps.CascadeExits(id)
	s.deps.Remove(id)
	for _, dep := range dependents {
		if !s.Exists(dep) {
			continue
		}
		reason := fmt.Sprintf("required dependency %d %s", id, cause)
		if err := s.Terminate(ctx, dep, reason); err != nil {
			s.logger.Warn("cascade terminate failed",
				zap.Uint16("agent_id", uint16(dep)),
				zap.Error(err),
			)
		}
	}
}

// Link records that dependent relies on dependency. Both agents must be
// registered. A required link terminates the dependent when the dependency
// exits or is terminated.
func (s *Supervisor) Link(dependent, dependency protocol.AgentID, kind DepKind) error {
	if !s.Exists(dependent) {
		return fmt.Errorf("agent %d: %w", dependent, policy.ErrUnknownAgent)
	}
	if !s.Exists(dependency) {
		return fmt.Errorf("agent %d: %w", dependency, policy.ErrUnknownAgent)
	}
	if err := s.deps.Add(dependent, dependency, kind); err != nil {
		return err
	}

	s.logger.Info("agents linked",
		zap.Uint16("dependent", uint16(dependent)),
		zap.Uint16("dependency", uint16(dependency)),
		zap.String("kind", string(kind)),
	)
	if s.tracker != nil {
		s.tracker.Record(dependent, "link",
			fmt.Sprintf("%s on agent %d", kind, dependency), compliance.RiskMinimal)
	}
	return nil
}

// AgentLinks is one agent's view of the dependency graph.
type AgentLinks struct {
	Dependencies []DepEdge          `json:"dependencies"`
	Dependents   []protocol.AgentID `json:"dependents"`
	Transitive   []protocol.AgentID `json:"transitive"`
}

// Links returns the agent's dependency edges, who depends on it, and the
// transitive closure of what it relies on.
func (s *Supervisor) Links(id protocol.AgentID) (AgentLinks, error) {
	if !s.Exists(id) {
		return AgentLinks{}, fmt.Errorf("agent %d: %w", id, policy.ErrUnknownAgent)
	}
	return AgentLinks{
		Dependencies: s.deps.DependenciesOf(id),
		Dependents:   s.deps.DependentsOf(id),
		Transitive:   s.deps.Chain(id),
	}, nil
}

func (s *Supervisor) escalate(f fault.Fault) {
	var reviewID string
	if s.reviews != nil {
		reviewID = s.reviews.Open(f).ID
	}
	if s.tracker != nil {
		s.tracker.Record(f.AgentID, "escalate", f.Detail, compliance.RiskHigh)
	}
	s.publish(Event{Kind: EventEscalated, AgentID: f.AgentID, Detail: reviewID})
}

func (s *Supervisor) remove(id protocol.AgentID) {
	s.mu.Lock()
	if meta, ok := s.agents[id]; ok {
		delete(s.pids, meta.PID)
		delete(s.agents, id)
	}
	s.mu.Unlock()
	s.engine.Unregister(id)
}

// Touch records activity for the watchdog.
func (s *Supervisor) Touch(id protocol.AgentID) {
	now := s.clock.NowMicros()
	s.mu.Lock()
	if meta, ok := s.agents[id]; ok {
		meta.LastActivityMicros = now
	}
	s.mu.Unlock()
}

// Exists reports whether the agent is currently registered. Suspended
// agents exist; terminated ones do not.
func (s *Supervisor) Exists(id protocol.AgentID) bool {
	s.mu.RLock()
	_, ok := s.agents[id]
	s.mu.RUnlock()
	return ok
}

// Agent returns a copy of one agent's metadata.
func (s *Supervisor) Agent(id protocol.AgentID) (AgentMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.agents[id]
	if !ok {
		return AgentMetadata{}, false
	}
	return meta.clone(), true
}

// Agents returns copies of all registered agents, ordered by identity.
func (s *Supervisor) Agents() []AgentMetadata {
	s.mu.RLock()
	out := make([]AgentMetadata, 0, len(s.agents))
	for _, meta := range s.agents {
		out = append(out, meta.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// SyncCapabilities mirrors a policy change into the registry.
func (s *Supervisor) SyncCapabilities(id protocol.AgentID, caps []policy.Capability) error {
	return s.mutate(id, func(meta *AgentMetadata) {
		meta.Capabilities = append([]policy.Capability(nil), caps...)
	})
}

// SyncScope mirrors a scope change into the registry.
func (s *Supervisor) SyncScope(id protocol.AgentID, scope policy.Scope) error {
	return s.mutate(id, func(meta *AgentMetadata) {
		meta.Scope = scope
	})
}

// SyncAutoRestart mirrors a restart-policy change into the registry.
func (s *Supervisor) SyncAutoRestart(id protocol.AgentID, enabled bool, maxRestarts int) error {
	return s.mutate(id, func(meta *AgentMetadata) {
		meta.AutoRestart = enabled
		if enabled && maxRestarts == 0 {
			maxRestarts = s.defaultMaxRestarts
		}
		meta.MaxRestarts = maxRestarts
	})
}

// NotifyPolicyChanged publishes a policy change to lifecycle listeners.
func (s *Supervisor) NotifyPolicyChanged(id protocol.AgentID, detail string) {
	s.publish(Event{Kind: EventPolicyChanged, AgentID: id, Detail: detail})
}

func (s *Supervisor) mutate(id protocol.AgentID, fn func(*AgentMetadata)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("agent %d: %w", id, policy.ErrUnknownAgent)
	}
	fn(meta)
	return nil
}
