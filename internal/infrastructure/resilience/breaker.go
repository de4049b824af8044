// Package resilience provides the circuit breaker that guards gateway
// backends. A backend that keeps failing is taken out of rotation for a
// cooldown period instead of eating a timeout on every request.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

// ErrOpen rejects calls while the breaker is cooling down.
var ErrOpen = errors.New("circuit open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings tunes when the breaker trips and how long it stays open.
type Settings struct {
	// FailureThreshold is the consecutive failure count that trips the
	// breaker. Zero means 5.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before probing. Zero
	// means 30 seconds.
	Cooldown time.Duration
	// OnStateChange observes transitions, for logging.
	OnStateChange func(name string, from, to State)
}

// Breaker is a per-backend circuit breaker. After FailureThreshold
// consecutive failures it opens for Cooldown; the first call after the
// cooldown probes the backend and closes the breaker on success.
type Breaker struct {
	name     string
	settings Settings
	clock    clock.Clock

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// New creates a closed breaker.
func New(name string, settings Settings, clk clock.Clock) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Breaker{
		name:     name,
		settings: settings,
		clock:    clk,
	}
}

// Name returns the breaker's backend name.
func (b *Breaker) Name() string {
	return b.name
}

// State reports the current position, advancing open to half-open when
// the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Do runs fn unless the breaker is open. The fn outcome drives the
// failure count and state transitions.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	state := b.current()
	if state == StateOpen {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.settings.FailureThreshold {
			b.setState(StateOpen)
			b.openedAt = b.clock.Now()
		}
		return err
	}
	b.failures = 0
	b.setState(StateClosed)
	return nil
}

func (b *Breaker) current() State {
	if b.state == StateOpen && b.clock.Now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	if next != StateOpen {
		b.failures = 0
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, next)
	}
}
