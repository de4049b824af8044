// Package gateway routes model requests to cloud providers. It meters
// per-agent usage, walks a fallback chain of backends, and discards
// results whose requesting agent died mid-flight.
package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// AgentResolver answers whether an agent identity is still registered.
type AgentResolver interface {
	Exists(protocol.AgentID) bool
}

// Gateway is the single entry point for outbound model requests.
type Gateway struct {
	limiter  *Limiter
	chain    *Chain
	agents   AgentResolver
	observer Observer
	logger   *logging.Logger
	timeout  time.Duration
}

// New wires a gateway. timeout bounds one full request including all
// fallback attempts.
func New(limiter *Limiter, chain *Chain, agents AgentResolver, obs Observer, logger *logging.Logger, timeout time.Duration) *Gateway {
	if obs == nil {
		obs = nopObserver{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gateway{
		limiter:  limiter,
		chain:    chain,
		agents:   agents,
		observer: obs,
		logger:   logger,
		timeout:  timeout,
	}
}

// Route meters and serves one model request for an agent. Each request
// costs one limiter token regardless of its token budget.
func (g *Gateway) Route(ctx context.Context, agent protocol.AgentID, req Request) (*Response, error) {
	if !g.agents.Exists(agent) {
		return nil, ErrOrphaned
	}
	if !g.limiter.TryConsume(agent, 1) {
		g.observer.RecordGatewayRateLimited()
		g.logger.Debug("request rate limited", zap.Uint16("agent_id", uint16(agent)))
		return nil, ErrRateLimited
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.chain.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	// The agent may have been terminated while the call was in flight.
	// Its result belongs to no one; drop it on the floor.
	if !g.agents.Exists(agent) {
		g.logger.Info("discarding orphaned result",
			zap.Uint16("agent_id", uint16(agent)),
			zap.String("backend", resp.Backend),
		)
		return nil, ErrOrphaned
	}
	return resp, nil
}
