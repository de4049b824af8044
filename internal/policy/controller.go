package policy

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/compliance"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"go.uber.org/zap"
)

// ErrAdminGrant rejects patches that would hand an agent the admin
// capability. Admin is assigned at spawn or not at all.
var ErrAdminGrant = errors.New("admin grant rejected")

// PatchKind discriminates runtime policy patches.
type PatchKind string

const (
	PatchAddCapability      PatchKind = "add_capability"
	PatchRemoveCapability   PatchKind = "remove_capability"
	PatchSetScope           PatchKind = "set_scope"
	PatchEnableAutoRestart  PatchKind = "enable_auto_restart"
	PatchDisableAutoRestart PatchKind = "disable_auto_restart"
)

// Patch is one runtime adjustment to an agent's policy. Fields beyond Kind
// are meaningful per kind only.
type Patch struct {
	Kind        PatchKind  `json:"kind"`
	Capability  Capability `json:"capability,omitempty"`
	Scope       *Scope     `json:"scope,omitempty"`
	MaxRestarts int        `json:"max_restarts,omitempty"`
}

// MetadataSync pushes policy-driven changes into the agent registry so the
// lifecycle layer and the engine never disagree.
type MetadataSync interface {
	SyncCapabilities(agent protocol.AgentID, caps []Capability) error
	SyncScope(agent protocol.AgentID, scope Scope) error
	SyncAutoRestart(agent protocol.AgentID, enabled bool, maxRestarts int) error
}

// ChangeListener observes applied patches.
type ChangeListener func(agent protocol.AgentID, patch Patch)

// RiskRule assigns a risk level to agents holding a capability combination.
// All listed capabilities must be held for the rule to match.
type RiskRule struct {
	Capabilities []Capability
	Risk         compliance.RiskLevel
}

// Controller applies runtime policy patches: it validates them, updates the
// engine and registry metadata, classifies the resulting grant set, and
// records the change for compliance review.
type Controller struct {
	engine    *Engine
	meta      MetadataSync
	tracker   *compliance.Tracker
	rules     []RiskRule
	listeners []ChangeListener
	logger    *logging.Logger
}

// NewController wires a controller over the engine and registry.
func NewController(engine *Engine, meta MetadataSync, tracker *compliance.Tracker, rules []RiskRule, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		engine:  engine,
		meta:    meta,
		tracker: tracker,
		rules:   rules,
		logger:  logger,
	}
}

// Subscribe registers a listener for applied patches. Not safe to call
// concurrently with Apply; wire listeners at startup.
func (c *Controller) Subscribe(l ChangeListener) {
	c.listeners = append(c.listeners, l)
}

// Apply validates and applies one patch. A rejected or failed patch leaves
// policy, metadata, and the compliance trail untouched.
func (c *Controller) Apply(agent protocol.AgentID, patch Patch) error {
	if err := c.apply(agent, patch); err != nil {
		return err
	}

	risk := c.classify(agent)
	c.tracker.Record(agent, "policy_change", describePatch(patch), risk)
	c.logger.Info("policy patch applied",
		zap.Uint16("agent_id", uint16(agent)),
		zap.String("kind", string(patch.Kind)),
		zap.String("risk", string(risk)),
	)
	for _, l := range c.listeners {
		l(agent, patch)
	}
	return nil
}

func (c *Controller) apply(agent protocol.AgentID, patch Patch) error {
	switch patch.Kind {
	case PatchAddCapability:
		if patch.Capability == CapAdmin {
			return ErrAdminGrant
		}
		if _, err := ParseCapability(string(patch.Capability)); err != nil {
			return err
		}
		if err := c.engine.Grant(agent, patch.Capability); err != nil {
			return err
		}
		return c.syncCaps(agent)

	case PatchRemoveCapability:
		if err := c.engine.Revoke(agent, patch.Capability); err != nil {
			return err
		}
		return c.syncCaps(agent)

	case PatchSetScope:
		if patch.Scope == nil {
			return fmt.Errorf("set_scope patch without scope")
		}
		if err := c.engine.SetScope(agent, *patch.Scope); err != nil {
			return err
		}
		return c.meta.SyncScope(agent, *patch.Scope)

	case PatchEnableAutoRestart:
		return c.meta.SyncAutoRestart(agent, true, patch.MaxRestarts)

	case PatchDisableAutoRestart:
		return c.meta.SyncAutoRestart(agent, false, 0)

	default:
		return fmt.Errorf("unknown patch kind %q", patch.Kind)
	}
}

func (c *Controller) syncCaps(agent protocol.AgentID) error {
	caps, ok := c.engine.Capabilities(agent)
	if !ok {
		return fmt.Errorf("agent %d: %w", agent, ErrUnknownAgent)
	}
	return c.meta.SyncCapabilities(agent, caps)
}

// classify evaluates risk rules against the agent's resulting grant set.
// The most severe matching rule wins; no match is minimal risk.
func (c *Controller) classify(agent protocol.AgentID) compliance.RiskLevel {
	caps, ok := c.engine.Capabilities(agent)
	if !ok {
		return compliance.RiskMinimal
	}
	held := make(map[Capability]bool, len(caps))
	for _, cp := range caps {
		held[cp] = true
	}

	risk := compliance.RiskMinimal
	for _, rule := range c.rules {
		matched := len(rule.Capabilities) > 0
		for _, need := range rule.Capabilities {
			if !held[need] {
				matched = false
				break
			}
		}
		if matched && rule.Risk.Severity() > risk.Severity() {
			risk = rule.Risk
		}
	}
	return risk
}

func describePatch(p Patch) string {
	switch p.Kind {
	case PatchAddCapability, PatchRemoveCapability:
		return fmt.Sprintf("%s %s", p.Kind, p.Capability)
	case PatchEnableAutoRestart:
		return fmt.Sprintf("%s max=%d", p.Kind, p.MaxRestarts)
	default:
		return string(p.Kind)
	}
}
