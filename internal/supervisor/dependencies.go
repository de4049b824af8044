package supervisor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// DepKind classifies a dependency edge between two agents.
type DepKind string

const (
	// DepRequired binds the dependent's lifetime to the dependency: when
	// the dependency goes away, the dependent is terminated with it.
	DepRequired DepKind = "required"

	// DepOptional is advisory. The dependent keeps running when the
	// dependency exits.
	DepOptional DepKind = "optional"

	// DepPeer marks coordination without a lifetime bond in either
	// direction.
	DepPeer DepKind = "peer"
)

// ParseDepKind converts a wire string into a dependency kind.
func ParseDepKind(name string) (DepKind, error) {
	switch kind := DepKind(name); kind {
	case DepRequired, DepOptional, DepPeer:
		return kind, nil
	}
	return "", fmt.Errorf("unknown dependency kind %q", name)
}

// ErrDependencyCycle reports an edge that would make the graph circular.
var ErrDependencyCycle = errors.New("dependency cycle")

// DepEdge is one edge: the dependent relies on the dependency.
type DepEdge struct {
	Dependent  protocol.AgentID `json:"dependent"`
	Dependency protocol.AgentID `json:"dependency"`
	Kind       DepKind          `json:"kind"`
}

// DepGraph tracks dependency edges between live agents. Forward edges go
// from a dependent to what it relies on; reverse edges answer who must be
// told when an agent dies.
type DepGraph struct {
	mu      sync.RWMutex
	forward map[protocol.AgentID][]DepEdge
	reverse map[protocol.AgentID][]protocol.AgentID
}

// NewDepGraph creates an empty graph.
func NewDepGraph() *DepGraph {
	return &DepGraph{
		forward: make(map[protocol.AgentID][]DepEdge),
		reverse: make(map[protocol.AgentID][]protocol.AgentID),
	}
}

// Add records an edge. Duplicate edges are ignored; an edge that would
// close a cycle is rejected.
func (g *DepGraph) Add(dependent, dependency protocol.AgentID, kind DepKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, e := range g.forward[dependent] {
		if e.Dependency == dependency {
			return nil
		}
	}
	if g.reaches(dependency, dependent, make(map[protocol.AgentID]bool)) {
		return fmt.Errorf("%d -> %d: %w", dependent, dependency, ErrDependencyCycle)
	}

	g.forward[dependent] = append(g.forward[dependent],
		DepEdge{Dependent: dependent, Dependency: dependency, Kind: kind})
	g.reverse[dependency] = append(g.reverse[dependency], dependent)
	return nil
}

// reaches reports whether from transitively depends on target. Caller holds
// the lock.
func (g *DepGraph) reaches(from, target protocol.AgentID, seen map[protocol.AgentID]bool) bool {
	if from == target {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	for _, e := range g.forward[from] {
		if g.reaches(e.Dependency, target, seen) {
			return true
		}
	}
	return false
}

// Remove deletes the agent and every edge touching it.
func (g *DepGraph) Remove(id protocol.AgentID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, e := range g.forward[id] {
		g.reverse[e.Dependency] = withoutID(g.reverse[e.Dependency], id)
	}
	delete(g.forward, id)

	for _, dependent := range g.reverse[id] {
		kept := g.forward[dependent][:0]
		for _, e := range g.forward[dependent] {
			if e.Dependency != id {
				kept = append(kept, e)
			}
		}
		g.forward[dependent] = kept
	}
	delete(g.reverse, id)
}

func withoutID(ids []protocol.AgentID, id protocol.AgentID) []protocol.AgentID {
	kept := ids[:0]
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	return kept
}

// DependenciesOf returns the agent's outgoing edges.
func (g *DepGraph) DependenciesOf(id protocol.AgentID) []DepEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]DepEdge(nil), g.forward[id]...)
}

// DependentsOf returns the agents holding an edge on id.
func (g *DepGraph) DependentsOf(id protocol.AgentID) []protocol.AgentID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]protocol.AgentID(nil), g.reverse[id]...)
}

// CascadeExits returns, transitively, the agents that cannot outlive id:
// every dependent holding a required edge on it, then theirs in turn.
func (g *DepGraph) CascadeExits(id protocol.AgentID) []protocol.AgentID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []protocol.AgentID
	g.collectCascade(id, make(map[protocol.AgentID]bool), &out)
	return out
}

func (g *DepGraph) collectCascade(id protocol.AgentID, seen map[protocol.AgentID]bool, out *[]protocol.AgentID) {
	for _, dependent := range g.reverse[id] {
		if seen[dependent] {
			continue
		}
		for _, e := range g.forward[dependent] {
			if e.Dependency == id && e.Kind == DepRequired {
				seen[dependent] = true
				*out = append(*out, dependent)
				g.collectCascade(dependent, seen, out)
				break
			}
		}
	}
}

// Chain returns the transitive set of agents id depends on, any kind.
func (g *DepGraph) Chain(id protocol.AgentID) []protocol.AgentID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []protocol.AgentID
	g.collectChain(id, make(map[protocol.AgentID]bool), &out)
	return out
}

func (g *DepGraph) collectChain(id protocol.AgentID, seen map[protocol.AgentID]bool, out *[]protocol.AgentID) {
	seen[id] = true
	for _, e := range g.forward[id] {
		if seen[e.Dependency] {
			continue
		}
		*out = append(*out, e.Dependency)
		g.collectChain(e.Dependency, seen, out)
	}
}
