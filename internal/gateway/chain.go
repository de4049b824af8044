package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

// Observer receives gateway telemetry.
type Observer interface {
	RecordGatewayAttempt(backend, outcome string, duration time.Duration)
	RecordChainExhausted()
	RecordGatewayRateLimited()
}

// nopObserver keeps the gateway usable without telemetry wiring.
type nopObserver struct{}

func (nopObserver) RecordGatewayAttempt(string, string, time.Duration) {}
func (nopObserver) RecordChainExhausted()                              {}
func (nopObserver) RecordGatewayRateLimited()                          {}

// Chain walks a fixed, ordered list of backends. Traversal state is
// request-local; concurrent requests never interfere with each other's
// position.
type Chain struct {
	backends []Backend
	clock    clock.Clock
	observer Observer
	logger   *logging.Logger
}

// NewChain builds a chain over the given backends in priority order.
func NewChain(backends []Backend, clk clock.Clock, obs Observer, logger *logging.Logger) *Chain {
	if obs == nil {
		obs = nopObserver{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Chain{
		backends: backends,
		clock:    clk,
		observer: obs,
		logger:   logger,
	}
}

// Backends lists the chain members in order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Complete tries each backend in order and returns the first success.
// Later backends are never attempted once one succeeds. A failure of any
// kind advances to the next backend; running out of backends reports
// ErrChainExhausted.
func (c *Chain) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(c.backends) == 0 {
		return nil, fmt.Errorf("no backends configured: %w", ErrChainExhausted)
	}

	var lastErr error
	for _, backend := range c.backends {
		start := c.clock.Now()
		resp, err := backend.Complete(ctx, req)
		elapsed := c.clock.Now().Sub(start)

		if err == nil {
			c.observer.RecordGatewayAttempt(backend.Name(), "ok", elapsed)
			return resp, nil
		}

		c.observer.RecordGatewayAttempt(backend.Name(), outcomeOf(err), elapsed)
		c.logger.Warn("backend attempt failed",
			zap.String("backend", backend.Name()),
			zap.String("outcome", outcomeOf(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		lastErr = err

		if ctx.Err() != nil {
			// The request deadline is gone; later backends would only
			// inherit a dead context.
			break
		}
	}

	c.observer.RecordChainExhausted()
	return nil, fmt.Errorf("%w: last error: %v", ErrChainExhausted, lastErr)
}

func outcomeOf(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return string(be.Kind)
	}
	return "error"
}
