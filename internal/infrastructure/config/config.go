package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all supervision-layer configuration.
type Config struct {
	Server     ServerConfig
	Logging    LogConfig
	Supervisor SupervisorConfig
	Gateway    GatewayConfig
	RateLimit  RateLimitConfig
	Detector   DetectorConfig
	Host       HostConfig
}

// HostConfig holds host-side collaborator settings. AgentRunner is a shell
// command executed per spawned agent; ScreenshotCmd is a command that
// writes a PNG to the path appended as its last argument.
type HostConfig struct {
	SandboxRoot   string `envconfig:"HOST_SANDBOX_ROOT" default:"./sandbox"`
	AgentRunner   string `envconfig:"HOST_AGENT_RUNNER" default:"sleep infinity"`
	ScreenshotCmd string `envconfig:"HOST_SCREENSHOT_CMD" default:""`
	PolicyFile    string `envconfig:"HOST_POLICY_FILE" default:""`
}

// ServerConfig holds the diagnostics HTTP server configuration.
type ServerConfig struct {
	Port int    `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// SupervisorConfig holds agent lifecycle defaults.
type SupervisorConfig struct {
	DefaultMaxRestarts int `envconfig:"SUPERVISOR_MAX_RESTARTS" default:"3"`
}

// GatewayConfig holds cloud gateway defaults.
type GatewayConfig struct {
	DefaultBurst     int     `envconfig:"GATEWAY_BURST" default:"30"`
	DefaultPerSecond float64 `envconfig:"GATEWAY_RPS" default:"10"`
	AttemptTimeoutMs int     `envconfig:"GATEWAY_ATTEMPT_TIMEOUT_MS" default:"30000"`
}

// RateLimitConfig holds diagnostics HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// DetectorConfig holds fault detection thresholds. Thresholds are
// configuration, not invariants.
type DetectorConfig struct {
	MemoryLimitBytes  uint64 `envconfig:"DETECTOR_MEMORY_LIMIT" default:"104857600"`
	SyscallRatePerSec uint64 `envconfig:"DETECTOR_SYSCALL_RATE" default:"1000"`
	WatchdogTimeoutUs uint64 `envconfig:"DETECTOR_WATCHDOG_US" default:"30000000"`
	// AbuseDetection feeds repeated authorization failures into the fault
	// detector as capability violations. Off until confirmed as product
	// behavior.
	AbuseDetection bool   `envconfig:"DETECTOR_ABUSE_DETECTION" default:"false"`
	AbuseThreshold uint64 `envconfig:"DETECTOR_ABUSE_THRESHOLD" default:"16"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8090,
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Supervisor: SupervisorConfig{
			DefaultMaxRestarts: 3,
		},
		Gateway: GatewayConfig{
			DefaultBurst:     30,
			DefaultPerSecond: 10,
			AttemptTimeoutMs: 30000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Detector: DetectorConfig{
			MemoryLimitBytes:  100 * 1024 * 1024,
			SyscallRatePerSec: 1000,
			WatchdogTimeoutUs: 30_000_000,
			AbuseDetection:    false,
			AbuseThreshold:    16,
		},
		Host: HostConfig{
			SandboxRoot: "./sandbox",
			AgentRunner: "sleep infinity",
		},
	}
}
