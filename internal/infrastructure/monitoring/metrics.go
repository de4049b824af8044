package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink is the narrow counter surface handed to components that emit
// metrics without depending on Prometheus types.
type Sink interface {
	Emit(name string, delta float64)
}

// Metrics holds all Prometheus metrics for the supervision layer
type Metrics struct {
	// Dispatch metrics
	FramesTotal      *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	BadFrames        prometheus.Counter
	Unsupported      prometheus.Counter
	PolicyDenies     *prometheus.CounterVec
	AuditAppends     prometheus.Counter

	// Supervisor metrics
	AgentsActive  prometheus.Gauge
	SpawnsTotal   prometheus.Counter
	ExitsTotal    *prometheus.CounterVec
	RestartsTotal prometheus.Counter
	FaultsTotal   *prometheus.CounterVec

	// Policy controller metrics
	PolicyPatches     *prometheus.CounterVec
	ComplianceEvents  *prometheus.CounterVec
	EscalationsOpened prometheus.Counter

	// Gateway metrics
	GatewayAttempts    *prometheus.CounterVec
	GatewayDuration    *prometheus.HistogramVec
	GatewayRateLimited prometheus.Counter
	ChainExhausted     prometheus.Counter

	// Named counters for the generic Sink surface
	generic *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		FramesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentsys_frames_total",
				Help: "Total dispatched wire frames by opcode and outcome",
			},
			[]string{"opcode", "outcome"},
		),
		DispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentsys_dispatch_duration_seconds",
				Help:    "Frame dispatch duration in seconds",
				Buckets: []float64{.00001, .0001, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"opcode"},
		),
		BadFrames: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentsys_bad_frames_total",
				Help: "Total frames rejected as malformed",
			},
		),
		Unsupported: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentsys_unsupported_opcodes_total",
				Help: "Total frames with an unknown opcode",
			},
		),
		PolicyDenies: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentsys_policy_denies_total",
				Help: "Total capability checks denied by reason",
			},
			[]string{"reason"},
		),
		AuditAppends: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentsys_audit_appends_total",
				Help: "Total audit records appended",
			},
		),

		AgentsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentsys_agents_active",
				Help: "Number of registered agents",
			},
		),
		SpawnsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentsys_agent_spawns_total",
				Help: "Total agent spawns",
			},
		),
		ExitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentsys_agent_exits_total",
				Help: "Total agent exits by kind (clean, crash)",
			},
			[]string{"kind"},
		),
		RestartsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentsys_agent_restarts_total",
				Help: "Total automatic agent restarts",
			},
		),
		FaultsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentsys_faults_total",
				Help: "Total classified faults by kind and action",
			},
			[]string{"kind", "action"},
		),

		PolicyPatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentsys_policy_patches_total",
				Help: "Total policy patches applied by kind",
			},
			[]string{"kind"},
		),
		ComplianceEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentsys_compliance_events_total",
				Help: "Total compliance events by risk level",
			},
			[]string{"risk"},
		),
		EscalationsOpened: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentsys_escalations_open_total",
				Help: "Total pending human-review records created",
			},
		),

		GatewayAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentsys_gateway_attempts_total",
				Help: "Total gateway backend attempts by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		GatewayDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentsys_gateway_attempt_duration_seconds",
				Help:    "Gateway backend attempt duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"backend"},
		),
		GatewayRateLimited: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentsys_gateway_rate_limited_total",
				Help: "Total gateway requests rejected by the rate limiter",
			},
		),
		ChainExhausted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentsys_gateway_chain_exhausted_total",
				Help: "Total requests that failed every backend in the chain",
			},
		),

		generic: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentsys_counter",
				Help: "Generic named counters emitted through the Sink surface",
			},
			[]string{"name"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentsys_uptime_seconds",
				Help: "Supervision layer uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// Emit implements Sink.
func (m *Metrics) Emit(name string, delta float64) {
	m.generic.WithLabelValues(name).Add(delta)
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordDispatch records a dispatched frame
func (m *Metrics) RecordDispatch(opcode, outcome string, duration time.Duration) {
	m.FramesTotal.WithLabelValues(opcode, outcome).Inc()
	m.DispatchDuration.WithLabelValues(opcode).Observe(duration.Seconds())
}

// RecordDeny records a policy denial
func (m *Metrics) RecordDeny(reason string) {
	m.PolicyDenies.WithLabelValues(reason).Inc()
}

// RecordExit records an agent exit
func (m *Metrics) RecordExit(clean bool) {
	kind := "crash"
	if clean {
		kind = "clean"
	}
	m.ExitsTotal.WithLabelValues(kind).Inc()
}

// RecordFault records a classified fault and the action taken
func (m *Metrics) RecordFault(kind, action string) {
	m.FaultsTotal.WithLabelValues(kind, action).Inc()
}

// RecordGatewayAttempt records one backend attempt
func (m *Metrics) RecordGatewayAttempt(backend, outcome string, duration time.Duration) {
	m.GatewayAttempts.WithLabelValues(backend, outcome).Inc()
	m.GatewayDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// NopSink discards all emissions. Used in tests.
type NopSink struct{}

func (NopSink) Emit(string, float64) {}
