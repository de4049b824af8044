package fault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

func TestPolicy_Defaults(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, ActionRestart, p.ActionFor(Crash, 0, 3))
	assert.Equal(t, ActionRestart, p.ActionFor(WatchdogTimeout, 0, 3))
	assert.Equal(t, ActionSuspend, p.ActionFor(ResourceExhaustion, 0, 3))
	assert.Equal(t, ActionEscalate, p.ActionFor(CapabilityViolation, 0, 3))
}

func TestPolicy_RestartBudget(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, ActionRestart, p.ActionFor(Crash, 2, 3))
	assert.Equal(t, ActionTerminate, p.ActionFor(Crash, 3, 3))
	assert.Equal(t, ActionTerminate, p.ActionFor(Crash, 4, 3))
}

func TestPolicy_Deterministic(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i < 10; i++ {
		assert.Equal(t, ActionRestart, p.ActionFor(Crash, 1, 3))
	}
}

func TestPolicy_UnmappedKindEscalates(t *testing.T) {
	p := NewPolicy(map[Kind]Action{Crash: ActionRestart})

	assert.Equal(t, ActionEscalate, p.ActionFor(ResourceExhaustion, 0, 3))
}

func TestPolicy_Variants(t *testing.T) {
	assert.Equal(t, ActionRestart, PermissivePolicy().ActionFor(ResourceExhaustion, 0, 3))
	assert.Equal(t, ActionTerminate, StrictPolicy().ActionFor(Crash, 0, 3))
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("suspend")
	require.NoError(t, err)
	assert.Equal(t, ActionSuspend, a)

	_, err = ParseAction("reboot")
	assert.Error(t, err)
}

func TestDetector_Memory(t *testing.T) {
	d := NewDetector(Thresholds{MemoryLimitBytes: 1 << 20})

	assert.Nil(t, d.CheckMemory(7, 1<<20))

	f := d.CheckMemory(7, 1<<20+1)
	require.NotNil(t, f)
	assert.Equal(t, ResourceExhaustion, f.Kind)
}

func TestDetector_MemoryDisabled(t *testing.T) {
	d := NewDetector(Thresholds{})

	assert.Nil(t, d.CheckMemory(7, 1<<40))
}

func TestDetector_SyscallRate(t *testing.T) {
	d := NewDetector(Thresholds{SyscallRatePerSec: 1000})

	assert.Nil(t, d.CheckSyscallRate(7, 1000))
	require.NotNil(t, d.CheckSyscallRate(7, 1001))
}

func TestDetector_Watchdog(t *testing.T) {
	d := NewDetector(Thresholds{WatchdogTimeout: 30 * time.Second})

	last := uint64(1_000_000)
	assert.Nil(t, d.CheckWatchdog(7, last, last+30_000_000))

	f := d.CheckWatchdog(7, last, last+30_000_001)
	require.NotNil(t, f)
	assert.Equal(t, WatchdogTimeout, f.Kind)
}

func TestDetector_AbuseDetectionOffByDefault(t *testing.T) {
	d := NewDetector(Thresholds{AbuseThreshold: 2})

	for i := 0; i < 10; i++ {
		assert.Nil(t, d.RecordDenial(7))
	}
}

func TestDetector_AbuseStreak(t *testing.T) {
	d := NewDetector(Thresholds{AbuseDetection: true, AbuseThreshold: 3})

	assert.Nil(t, d.RecordDenial(7))
	assert.Nil(t, d.RecordDenial(7))

	f := d.RecordDenial(7)
	require.NotNil(t, f)
	assert.Equal(t, CapabilityViolation, f.Kind)

	// Streak reset after reporting.
	assert.Nil(t, d.RecordDenial(7))
}

func TestDetector_AllowedResetsStreak(t *testing.T) {
	d := NewDetector(Thresholds{AbuseDetection: true, AbuseThreshold: 3})

	d.RecordDenial(7)
	d.RecordDenial(7)
	d.RecordAllowed(7)

	assert.Nil(t, d.RecordDenial(7))
	assert.Nil(t, d.RecordDenial(7))
	assert.NotNil(t, d.RecordDenial(7))
}

func TestReviewQueue_OpenPendingResolve(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	q := NewReviewQueue(clk)

	first := q.Open(Fault{AgentID: 7, Kind: CapabilityViolation, Detail: "denied fs_delete"})
	clk.Advance(time.Second)
	second := q.Open(Fault{AgentID: 8, Kind: CapabilityViolation, Detail: "denied screenshot"})

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	require.NoError(t, q.Resolve(first.ID))
	assert.Len(t, q.Pending(), 1)

	assert.ErrorIs(t, q.Resolve(first.ID), ErrUnknownReview)
}
