package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// ErrUnknownAgent reports an update aimed at an agent with no record.
var ErrUnknownAgent = errors.New("unknown agent")

// record is one agent's grant set. Records are immutable once stored; any
// change builds a replacement and swaps it in under the write lock.
type record struct {
	caps  map[Capability]bool
	scope Scope
}

func (r *record) clone() *record {
	caps := make(map[Capability]bool, len(r.caps))
	for c := range r.caps {
		caps[c] = true
	}
	return &record{caps: caps, scope: r.scope}
}

// Engine holds per-agent capability grants and answers access checks.
type Engine struct {
	mu     sync.RWMutex
	agents map[protocol.AgentID]*record
}

// NewEngine creates an empty engine. Every check against it denies.
func NewEngine() *Engine {
	return &Engine{agents: make(map[protocol.AgentID]*record)}
}

// Register installs an agent's initial grant set, replacing any previous
// record for the same identity.
func (e *Engine) Register(agent protocol.AgentID, caps []Capability, scope Scope) {
	rec := &record{caps: make(map[Capability]bool, len(caps)), scope: scope}
	for _, c := range caps {
		rec.caps[c] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[agent] = rec
}

// Unregister removes an agent. Subsequent checks deny as unknown.
func (e *Engine) Unregister(agent protocol.AgentID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.agents, agent)
}

// Grant adds one capability to a registered agent.
func (e *Engine) Grant(agent protocol.AgentID, c Capability) error {
	return e.update(agent, func(rec *record) {
		rec.caps[c] = true
	})
}

// Revoke removes one capability from a registered agent. Revoking a
// capability the agent never held is a no-op.
func (e *Engine) Revoke(agent protocol.AgentID, c Capability) error {
	return e.update(agent, func(rec *record) {
		delete(rec.caps, c)
	})
}

// SetScope replaces a registered agent's scope.
func (e *Engine) SetScope(agent protocol.AgentID, scope Scope) error {
	return e.update(agent, func(rec *record) {
		rec.scope = scope
	})
}

func (e *Engine) update(agent protocol.AgentID, mutate func(*record)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.agents[agent]
	if !ok {
		return fmt.Errorf("agent %d: %w", agent, ErrUnknownAgent)
	}
	next := rec.clone()
	mutate(next)
	e.agents[agent] = next
	return nil
}

// Capabilities returns a sorted copy of an agent's grant set.
func (e *Engine) Capabilities(agent protocol.AgentID) ([]Capability, bool) {
	e.mu.RLock()
	rec, ok := e.agents[agent]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}

	caps := make([]Capability, 0, len(rec.caps))
	for c := range rec.caps {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps, true
}

// ScopeOf returns an agent's current scope.
func (e *Engine) ScopeOf(agent protocol.AgentID) (Scope, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.agents[agent]
	if !ok {
		return Scope{}, false
	}
	return rec.scope, true
}

// Check decides whether the agent may touch the resource under the given
// capability. Denial is the default: zero or unknown agents, missing
// capabilities, and out-of-scope resources all deny with a reason.
func (e *Engine) Check(agent protocol.AgentID, c Capability, res Resource) Decision {
	if agent == 0 {
		return Deny("reserved agent id")
	}

	e.mu.RLock()
	rec, ok := e.agents[agent]
	e.mu.RUnlock()

	if !ok {
		return Deny(fmt.Sprintf("agent %d not registered", agent))
	}
	if !rec.caps[c] && !rec.caps[CapAdmin] {
		return Deny(fmt.Sprintf("missing capability %s", c))
	}
	if ok, reason := rec.scope.permits(res); !ok {
		return Deny(reason)
	}
	return Allow()
}
