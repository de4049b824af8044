package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// PolicyFile is the operator-editable part of the configuration: recovery
// actions, compliance risk rules, and the gateway fallback chain. All
// values are plain strings here; consuming packages translate them into
// their own enumerations so a bad file fails loudly at startup, not at
// fault time.
type PolicyFile struct {
	Recovery RecoveryFile `yaml:"recovery"`
	Risk     []RiskRule   `yaml:"risk_rules"`
	Gateway  GatewayFile  `yaml:"gateway"`
}

// RecoveryFile maps fault kinds to recovery actions.
type RecoveryFile struct {
	Crash               string `yaml:"crash"`
	ResourceExhaustion  string `yaml:"resource_exhaustion"`
	CapabilityViolation string `yaml:"capability_violation"`
	WatchdogTimeout     string `yaml:"watchdog_timeout"`
}

// RiskRule classifies a capability combination.
type RiskRule struct {
	Capabilities []string `yaml:"capabilities"`
	Risk         string   `yaml:"risk"`
}

// GatewayFile describes the fallback chain and its backends.
type GatewayFile struct {
	Chain    []string              `yaml:"chain"`
	Backends map[string]BackendDef `yaml:"backends"`
}

// BackendDef is one provider endpoint.
type BackendDef struct {
	URL       string        `yaml:"url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultPolicyFile returns the built-in policy used when no file is given.
func DefaultPolicyFile() *PolicyFile {
	return &PolicyFile{
		Recovery: RecoveryFile{
			Crash:               "restart",
			ResourceExhaustion:  "suspend",
			CapabilityViolation: "escalate",
			WatchdogTimeout:     "restart",
		},
		Risk: []RiskRule{
			{Capabilities: []string{"capture", "audio_control"}, Risk: "high"},
			{Capabilities: []string{"fs_admin"}, Risk: "limited"},
			{Capabilities: []string{"screenshot"}, Risk: "limited"},
		},
		Gateway: GatewayFile{
			Chain:    []string{"claude", "gpt4", "gemini"},
			Backends: map[string]BackendDef{},
		},
	}
}

// LoadPolicyFile parses the YAML policy file at path.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	pf := DefaultPolicyFile()
	if err := yaml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return pf, nil
}

// LoadPolicyFileOrDefault loads path if non-empty, otherwise defaults.
func LoadPolicyFileOrDefault(path string) (*PolicyFile, error) {
	if path == "" {
		return DefaultPolicyFile(), nil
	}
	return LoadPolicyFile(path)
}
