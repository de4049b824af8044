package fault

// Policy maps fault kinds to recovery actions. The mapping itself is
// configuration; the restart budget is the one fixed rule: once an agent
// has used up its restarts, any restart answer becomes terminate.
type Policy struct {
	actions map[Kind]Action
}

// NewPolicy builds a policy from an explicit mapping. Kinds absent from
// the mapping fall back to escalation, the only non-mutating action.
func NewPolicy(actions map[Kind]Action) *Policy {
	m := make(map[Kind]Action, len(actions))
	for k, a := range actions {
		m[k] = a
	}
	return &Policy{actions: m}
}

// DefaultPolicy restarts crashes and hangs, suspends resource hogs, and
// sends capability violations to human review.
func DefaultPolicy() *Policy {
	return NewPolicy(map[Kind]Action{
		Crash:               ActionRestart,
		WatchdogTimeout:     ActionRestart,
		ResourceExhaustion:  ActionSuspend,
		CapabilityViolation: ActionEscalate,
	})
}

// PermissivePolicy restarts everything it can; only capability violations
// still reach review.
func PermissivePolicy() *Policy {
	return NewPolicy(map[Kind]Action{
		Crash:               ActionRestart,
		WatchdogTimeout:     ActionRestart,
		ResourceExhaustion:  ActionRestart,
		CapabilityViolation: ActionEscalate,
	})
}

// StrictPolicy terminates on any fault.
func StrictPolicy() *Policy {
	return NewPolicy(map[Kind]Action{
		Crash:               ActionTerminate,
		WatchdogTimeout:     ActionTerminate,
		ResourceExhaustion:  ActionTerminate,
		CapabilityViolation: ActionTerminate,
	})
}

// ActionFor resolves the action for a fault given the agent's restart
// history. Deterministic: same inputs, same answer.
func (p *Policy) ActionFor(kind Kind, restartCount, maxRestarts int) Action {
	action, ok := p.actions[kind]
	if !ok {
		return ActionEscalate
	}
	if action == ActionRestart && restartCount >= maxRestarts {
		return ActionTerminate
	}
	return action
}
