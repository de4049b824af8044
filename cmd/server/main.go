package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/audit"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/compliance"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/fault"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/gateway"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/host"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/policy"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/server"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/supervisor"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/telemetry"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/ws"
)

func main() {
	policyPath := flag.String("policy", "", "Path to the YAML policy file (overrides HOST_POLICY_FILE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	path := cfg.Host.PolicyFile
	if *policyPath != "" {
		path = *policyPath
	}
	pf, err := config.LoadPolicyFileOrDefault(path)
	if err != nil {
		logger.Fatal("load policy file", zap.Error(err))
	}

	recovery, err := buildRecovery(pf.Recovery)
	if err != nil {
		logger.Fatal("invalid recovery policy", zap.Error(err))
	}
	rules, err := buildRiskRules(pf.Risk)
	if err != nil {
		logger.Fatal("invalid risk rules", zap.Error(err))
	}

	clk := clock.NewSystem()
	metrics := monitoring.NewMetrics()
	tel := telemetry.New(metrics)

	engine := policy.NewEngine()
	auditor := audit.New(clk)
	tracker := compliance.NewTracker(clk)
	tracker.Observe(func(ev compliance.Event) {
		tel.RecordCompliance(string(ev.Risk))
	})
	reviews := fault.NewReviewQueue(clk)
	detector := fault.NewDetector(fault.Thresholds{
		MemoryLimitBytes:  cfg.Detector.MemoryLimitBytes,
		SyscallRatePerSec: cfg.Detector.SyscallRatePerSec,
		WatchdogTimeout:   time.Duration(cfg.Detector.WatchdogTimeoutUs) * time.Microsecond,
		AbuseDetection:    cfg.Detector.AbuseDetection,
		AbuseThreshold:    int(cfg.Detector.AbuseThreshold),
	})

	procs := host.NewExecManager("sh", "-c", cfg.Host.AgentRunner)
	sup := supervisor.New(supervisor.Options{
		Processes:          procs,
		Engine:             engine,
		Recovery:           recovery,
		Reviews:            reviews,
		Tracker:            tracker,
		Clock:              clk,
		Logger:             logger,
		DefaultMaxRestarts: cfg.Supervisor.DefaultMaxRestarts,
	})
	procs.BindExit(func(ctx context.Context, pid supervisor.PID, code int) {
		if err := sup.OnProcessExit(ctx, pid, code); err != nil {
			logger.Warn("unmatched process exit",
				zap.Uint32("pid", uint32(pid)),
				zap.Int("exit_code", code),
				zap.Error(err),
			)
		}
	})

	ctrl := policy.NewController(engine, sup, tracker, rules, logger)

	limiter := gateway.NewLimiter(cfg.Gateway.DefaultPerSecond, cfg.Gateway.DefaultBurst, clk)
	chain := gateway.NewChain(buildBackends(pf.Gateway, clk, logger), clk, tel, logger)
	gw := gateway.New(limiter, chain, sup, tel, logger,
		time.Duration(cfg.Gateway.AttemptTimeoutMs)*time.Millisecond)

	fs, err := host.NewLocalFS(cfg.Host.SandboxRoot)
	if err != nil {
		logger.Fatal("init sandbox", zap.Error(err))
	}
	mixer := host.NewMixer()
	docs := host.NewDocStore(fs)
	grabber := host.NewGrabber(strings.Fields(cfg.Host.ScreenshotCmd))

	disp := dispatch.New(dispatch.Options{
		Engine:     engine,
		Audit:      auditor,
		Clock:      clk,
		Telemetry:  tel,
		Logger:     logger,
		Filesystem: fs,
		Audio:      mixer,
		Documents:  docs,
		Capture:    grabber,
		Models:     gw,
		Activity:   sup,
		Abuse:      detector,
		Faults:     sup,
		Presenter:  logPresenter{logger},
	})

	hub := ws.NewHub(logger, metrics)
	sup.Subscribe(tel.HandleLifecycle)
	sup.Subscribe(hub.Publish)
	sup.Subscribe(func(ev supervisor.Event) {
		if ev.Kind == supervisor.EventTerminated {
			limiter.Forget(ev.AgentID)
		}
	})
	ctrl.Subscribe(func(agent protocol.AgentID, patch policy.Patch) {
		tel.RecordPolicyPatch(string(patch.Kind))
		sup.NotifyPolicyChanged(agent, string(patch.Kind))
	})

	handlers := server.NewHandlers(sup, ctrl, auditor, tracker, reviews, tel, disp, hub)
	srv := server.New(server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, handlers, logger)

	logger.Info("agentsys starting",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("sandbox", fs.Root()),
		zap.Int("backends", len(chain.Backends())),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}
}

// buildRecovery translates the policy file's action names into a fault
// policy, failing loudly on an unknown name.
func buildRecovery(rf config.RecoveryFile) (*fault.Policy, error) {
	names := map[fault.Kind]string{
		fault.Crash:               rf.Crash,
		fault.ResourceExhaustion:  rf.ResourceExhaustion,
		fault.CapabilityViolation: rf.CapabilityViolation,
		fault.WatchdogTimeout:     rf.WatchdogTimeout,
	}
	actions := make(map[fault.Kind]fault.Action, len(names))
	for kind, name := range names {
		if name == "" {
			continue
		}
		action, err := fault.ParseAction(name)
		if err != nil {
			return nil, err
		}
		actions[kind] = action
	}
	return fault.NewPolicy(actions), nil
}

// buildRiskRules validates capability and risk names from the policy file.
func buildRiskRules(rules []config.RiskRule) ([]policy.RiskRule, error) {
	out := make([]policy.RiskRule, 0, len(rules))
	for _, r := range rules {
		risk, err := compliance.ParseRiskLevel(r.Risk)
		if err != nil {
			return nil, err
		}
		caps := make([]policy.Capability, 0, len(r.Capabilities))
		for _, name := range r.Capabilities {
			c, err := policy.ParseCapability(name)
			if err != nil {
				return nil, err
			}
			caps = append(caps, c)
		}
		out = append(out, policy.RiskRule{Capabilities: caps, Risk: risk})
	}
	return out, nil
}

// buildBackends creates a provider client per configured chain entry.
// Entries without a backend definition are skipped with a warning so a
// partial file still serves the backends it does describe.
func buildBackends(gf config.GatewayFile, clk clock.Clock, logger *logging.Logger) []gateway.Backend {
	backends := make([]gateway.Backend, 0, len(gf.Chain))
	for _, name := range gf.Chain {
		def, ok := gf.Backends[name]
		if !ok {
			logger.Warn("chain entry has no backend definition", zap.String("backend", name))
			continue
		}
		breaker := resilience.New(name, resilience.Settings{
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("backend breaker state change",
					zap.String("backend", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}, clk)
		backends = append(backends, gateway.NewHTTPBackend(gateway.HTTPBackendConfig{
			Name:    name,
			BaseURL: def.URL,
			APIKey:  os.Getenv(def.APIKeyEnv),
			Timeout: def.Timeout,
		}, breaker))
	}
	return backends
}

// logPresenter logs delivered output instead of pushing it to a transport.
type logPresenter struct {
	logger *logging.Logger
}

func (p logPresenter) Deliver(agent protocol.AgentID, opcode protocol.Opcode, data []byte) {
	p.logger.Debug("output delivered",
		zap.Uint16("agent_id", uint16(agent)),
		zap.Uint8("opcode", uint8(opcode)),
		zap.Int("bytes", len(data)),
	)
}
