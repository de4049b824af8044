package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

// scriptedBackend fails with its configured error until it runs out of
// failures, then succeeds.
type scriptedBackend struct {
	name     string
	failKind ErrorKind
	failures int
	calls    int
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) Complete(_ context.Context, req Request) (*Response, error) {
	b.calls++
	if b.failures > 0 {
		b.failures--
		return nil, &BackendError{Backend: b.name, Kind: b.failKind}
	}
	return &Response{Backend: b.name, Text: "completion for: " + req.Prompt, TokensUsed: req.MaxTokens / 2}, nil
}

type recordingObserver struct {
	mu          sync.Mutex
	attempts    []string
	exhausted   int
	rateLimited int
}

func (o *recordingObserver) RecordGatewayAttempt(backend, outcome string, _ time.Duration) {
	o.mu.Lock()
	o.attempts = append(o.attempts, backend+":"+outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) RecordChainExhausted() {
	o.mu.Lock()
	o.exhausted++
	o.mu.Unlock()
}

func (o *recordingObserver) RecordGatewayRateLimited() {
	o.mu.Lock()
	o.rateLimited++
	o.mu.Unlock()
}

type staticResolver struct {
	mu     sync.Mutex
	agents map[protocol.AgentID]bool
}

func newStaticResolver(ids ...protocol.AgentID) *staticResolver {
	m := make(map[protocol.AgentID]bool)
	for _, id := range ids {
		m[id] = true
	}
	return &staticResolver{agents: m}
}

func (r *staticResolver) Exists(id protocol.AgentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[id]
}

func (r *staticResolver) remove(id protocol.AgentID) {
	r.mu.Lock()
	delete(r.agents, id)
	r.mu.Unlock()
}

func TestChain_FirstSuccessStops(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	a := &scriptedBackend{name: "claude"}
	b := &scriptedBackend{name: "gpt4"}
	chain := NewChain([]Backend{a, b}, clk, nil, nil)

	resp, err := chain.Complete(context.Background(), Request{Prompt: "hi", MaxTokens: 100})

	require.NoError(t, err)
	assert.Equal(t, "claude", resp.Backend)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls)
}

// Two failing backends, a third that succeeds, and a fourth that must
// never be reached.
func TestChain_FallbackOrder(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	a := &scriptedBackend{name: "a", failKind: KindTimeout, failures: 1}
	b := &scriptedBackend{name: "b", failKind: KindUnavailable, failures: 1}
	c := &scriptedBackend{name: "c"}
	d := &scriptedBackend{name: "d"}
	obs := &recordingObserver{}
	chain := NewChain([]Backend{a, b, c, d}, clk, obs, nil)

	resp, err := chain.Complete(context.Background(), Request{Prompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "c", resp.Backend)
	assert.Zero(t, d.calls)
	assert.Equal(t, []string{"a:timeout", "b:unavailable", "c:ok"}, obs.attempts)
	assert.Zero(t, obs.exhausted)
}

func TestChain_Exhaustion(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	a := &scriptedBackend{name: "a", failKind: KindRateLimitedUpstream, failures: 10}
	b := &scriptedBackend{name: "b", failKind: KindInvalidResponse, failures: 10}
	obs := &recordingObserver{}
	chain := NewChain([]Backend{a, b}, clk, obs, nil)

	_, err := chain.Complete(context.Background(), Request{Prompt: "x"})

	assert.ErrorIs(t, err, ErrChainExhausted)
	assert.Equal(t, 1, obs.exhausted)
	assert.Len(t, obs.attempts, 2)
}

func TestChain_Empty(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	chain := NewChain(nil, clk, nil, nil)

	_, err := chain.Complete(context.Background(), Request{})

	assert.ErrorIs(t, err, ErrChainExhausted)
}

func TestChain_StateIsRequestLocal(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	a := &scriptedBackend{name: "a", failKind: KindTimeout, failures: 1}
	b := &scriptedBackend{name: "b"}
	chain := NewChain([]Backend{a, b}, clk, nil, nil)

	// First request falls back to b.
	resp, err := chain.Complete(context.Background(), Request{Prompt: "1"})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Backend)

	// Second request starts from the top again and a has recovered.
	resp, err = chain.Complete(context.Background(), Request{Prompt: "2"})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Backend)
}

// A bucket of capacity five with no refill serves exactly five requests.
func TestLimiter_CapacityExhaustion(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewLimiter(0, 5, clk)

	for i := 0; i < 5; i++ {
		assert.True(t, l.TryConsume(7, 1), "request %d", i)
	}
	assert.False(t, l.TryConsume(7, 1))
}

func TestLimiter_RefillOverTime(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewLimiter(2, 2, clk)

	assert.True(t, l.TryConsume(7, 2))
	assert.False(t, l.TryConsume(7, 1))

	clk.Advance(500 * time.Millisecond)
	assert.True(t, l.TryConsume(7, 1))
	assert.False(t, l.TryConsume(7, 1))
}

func TestLimiter_BucketsAreIndependent(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewLimiter(0, 1, clk)

	assert.True(t, l.TryConsume(1, 1))
	assert.True(t, l.TryConsume(2, 1))
	assert.False(t, l.TryConsume(1, 1))
}

func TestLimiter_SetLimitAndForget(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	l := NewLimiter(0, 1, clk)

	require.True(t, l.TryConsume(7, 1))
	l.SetLimit(7, 0, 3)
	assert.True(t, l.TryConsume(7, 3))

	// Forget restores the default bucket, full again.
	l.Forget(7)
	assert.True(t, l.TryConsume(7, 1))
}

func newTestGateway(backends []Backend, resolver AgentResolver, burst int) (*Gateway, *recordingObserver, *clock.Manual) {
	clk := clock.NewManual(time.Unix(1000, 0))
	obs := &recordingObserver{}
	chain := NewChain(backends, clk, obs, nil)
	limiter := NewLimiter(0, burst, clk)
	return New(limiter, chain, resolver, obs, nil, time.Minute), obs, clk
}

func TestGateway_RouteSuccess(t *testing.T) {
	resolver := newStaticResolver(7)
	g, _, _ := newTestGateway([]Backend{&scriptedBackend{name: "claude"}}, resolver, 5)

	resp, err := g.Route(context.Background(), 7, Request{Prompt: "hello", MaxTokens: 100})

	require.NoError(t, err)
	assert.Equal(t, "claude", resp.Backend)
}

func TestGateway_RateLimitNoQueue(t *testing.T) {
	resolver := newStaticResolver(7)
	backend := &scriptedBackend{name: "claude"}
	g, obs, _ := newTestGateway([]Backend{backend}, resolver, 2)

	for i := 0; i < 2; i++ {
		_, err := g.Route(context.Background(), 7, Request{Prompt: "x"})
		require.NoError(t, err)
	}

	_, err := g.Route(context.Background(), 7, Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, obs.rateLimited)
	// The chain is never consulted for a limited request.
	assert.Equal(t, 2, backend.calls)
}

func TestGateway_UnknownAgent(t *testing.T) {
	resolver := newStaticResolver()
	g, _, _ := newTestGateway([]Backend{&scriptedBackend{name: "claude"}}, resolver, 5)

	_, err := g.Route(context.Background(), 7, Request{Prompt: "x"})

	assert.ErrorIs(t, err, ErrOrphaned)
}

// dyingBackend removes the agent from the resolver while the request is
// in flight, simulating termination mid-call.
type dyingBackend struct {
	resolver *staticResolver
	agent    protocol.AgentID
}

func (b *dyingBackend) Name() string { return "slow" }

func (b *dyingBackend) Complete(context.Context, Request) (*Response, error) {
	b.resolver.remove(b.agent)
	return &Response{Backend: "slow", Text: "too late"}, nil
}

func TestGateway_OrphanedResultDiscarded(t *testing.T) {
	resolver := newStaticResolver(7)
	g, _, _ := newTestGateway([]Backend{&dyingBackend{resolver: resolver, agent: 7}}, resolver, 5)

	resp, err := g.Route(context.Background(), 7, Request{Prompt: "x"})

	assert.ErrorIs(t, err, ErrOrphaned)
	assert.Nil(t, resp)
}
