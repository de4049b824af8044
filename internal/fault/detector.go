package fault

import (
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// Thresholds are the detector's operating limits. Zero values disable the
// corresponding check.
type Thresholds struct {
	MemoryLimitBytes  uint64
	SyscallRatePerSec uint64
	WatchdogTimeout   time.Duration
	AbuseDetection    bool
	AbuseThreshold    int
}

// Detector turns raw observations into faults. It is stateless except for
// the per-agent denial counters used by abuse detection.
type Detector struct {
	limits Thresholds

	mu      sync.Mutex
	denials map[protocol.AgentID]int
}

// NewDetector creates a detector with the given limits.
func NewDetector(limits Thresholds) *Detector {
	return &Detector{
		limits:  limits,
		denials: make(map[protocol.AgentID]int),
	}
}

// CheckMemory reports resource exhaustion when usage crosses the limit.
func (d *Detector) CheckMemory(agent protocol.AgentID, usageBytes uint64) *Fault {
	if d.limits.MemoryLimitBytes == 0 || usageBytes <= d.limits.MemoryLimitBytes {
		return nil
	}
	return &Fault{
		AgentID: agent,
		Kind:    ResourceExhaustion,
		Detail:  fmt.Sprintf("memory %d bytes over limit %d", usageBytes, d.limits.MemoryLimitBytes),
	}
}

// CheckSyscallRate reports resource exhaustion when an agent issues
// operations faster than the limit allows.
func (d *Detector) CheckSyscallRate(agent protocol.AgentID, perSec uint64) *Fault {
	if d.limits.SyscallRatePerSec == 0 || perSec <= d.limits.SyscallRatePerSec {
		return nil
	}
	return &Fault{
		AgentID: agent,
		Kind:    ResourceExhaustion,
		Detail:  fmt.Sprintf("syscall rate %d/s over limit %d/s", perSec, d.limits.SyscallRatePerSec),
	}
}

// CheckWatchdog reports a hang when the agent has been silent past the
// timeout.
func (d *Detector) CheckWatchdog(agent protocol.AgentID, lastActivityMicros, nowMicros uint64) *Fault {
	timeout := uint64(d.limits.WatchdogTimeout.Microseconds())
	if timeout == 0 || nowMicros < lastActivityMicros || nowMicros-lastActivityMicros <= timeout {
		return nil
	}
	return &Fault{
		AgentID: agent,
		Kind:    WatchdogTimeout,
		Detail:  fmt.Sprintf("no activity for %dus", nowMicros-lastActivityMicros),
	}
}

// RecordDenial counts a policy denial against the agent. When abuse
// detection is on and the streak crosses the threshold, the streak resets
// and a capability violation is reported.
func (d *Detector) RecordDenial(agent protocol.AgentID) *Fault {
	if !d.limits.AbuseDetection {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.denials[agent]++
	if d.denials[agent] < d.limits.AbuseThreshold {
		return nil
	}
	streak := d.denials[agent]
	delete(d.denials, agent)
	return &Fault{
		AgentID: agent,
		Kind:    CapabilityViolation,
		Detail:  fmt.Sprintf("%d consecutive denied operations", streak),
	}
}

// RecordAllowed resets the agent's denial streak.
func (d *Detector) RecordAllowed(agent protocol.AgentID) {
	if !d.limits.AbuseDetection {
		return
	}
	d.mu.Lock()
	delete(d.denials, agent)
	d.mu.Unlock()
}
