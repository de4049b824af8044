// Package fault classifies agent misbehavior and maps it to recovery
// actions. Classification is mechanical; the supervisor owns carrying the
// chosen action out.
package fault

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// Kind names a class of detected misbehavior.
type Kind string

const (
	ResourceExhaustion  Kind = "resource_exhaustion"
	CapabilityViolation Kind = "capability_violation"
	Crash               Kind = "crash"
	WatchdogTimeout     Kind = "watchdog_timeout"
)

// Action is what the supervisor should do about a fault.
type Action string

const (
	ActionRestart   Action = "restart"
	ActionSuspend   Action = "suspend"
	ActionTerminate Action = "terminate"
	ActionEscalate  Action = "escalate"
)

var knownActions = map[Action]bool{
	ActionRestart:   true,
	ActionSuspend:   true,
	ActionTerminate: true,
	ActionEscalate:  true,
}

// ParseAction validates an action name from config.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !knownActions[a] {
		return "", fmt.Errorf("unknown recovery action %q", s)
	}
	return a, nil
}

// Fault is one detected incident.
type Fault struct {
	AgentID protocol.AgentID `json:"agent_id"`
	Kind    Kind             `json:"kind"`
	Detail  string           `json:"detail"`
}
