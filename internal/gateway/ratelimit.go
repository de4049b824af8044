package gateway

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

// Limiter meters cloud requests per agent with independent token buckets.
// Time comes from the injected clock, so refill is deterministic under a
// manual clock.
type Limiter struct {
	mu      sync.Mutex
	buckets map[protocol.AgentID]*rate.Limiter
	perSec  float64
	burst   int
	clock   clock.Clock
}

// NewLimiter creates a limiter with the given per-agent defaults. burst is
// the bucket capacity; perSec the refill rate.
func NewLimiter(perSec float64, burst int, clk clock.Clock) *Limiter {
	return &Limiter{
		buckets: make(map[protocol.AgentID]*rate.Limiter),
		perSec:  perSec,
		burst:   burst,
		clock:   clk,
	}
}

func (l *Limiter) bucket(agent protocol.AgentID) *rate.Limiter {
	b, ok := l.buckets[agent]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.perSec), l.burst)
		// A fresh bucket starts full as of now, not process start.
		b.AllowN(l.clock.Now(), 0)
		l.buckets[agent] = b
	}
	return b
}

// TryConsume takes cost tokens from the agent's bucket. It reports false
// without blocking when the bucket cannot cover the cost.
func (l *Limiter) TryConsume(agent protocol.AgentID, cost int) bool {
	l.mu.Lock()
	b := l.bucket(agent)
	l.mu.Unlock()
	return b.AllowN(l.clock.Now(), cost)
}

// SetLimit overrides one agent's bucket, replacing any accumulated tokens.
func (l *Limiter) SetLimit(agent protocol.AgentID, perSec float64, burst int) {
	l.mu.Lock()
	b := rate.NewLimiter(rate.Limit(perSec), burst)
	b.AllowN(l.clock.Now(), 0)
	l.buckets[agent] = b
	l.mu.Unlock()
}

// Forget drops an agent's bucket, typically on termination.
func (l *Limiter) Forget(agent protocol.AgentID) {
	l.mu.Lock()
	delete(l.buckets, agent)
	l.mu.Unlock()
}
