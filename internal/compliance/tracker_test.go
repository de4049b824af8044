package compliance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

func TestTracker_RecordAndRecent(t *testing.T) {
	tr := NewTracker(clock.NewManual(time.Unix(1000, 0)))

	tr.Record(1, "spawn", "agent spawned", RiskMinimal)
	tr.Record(1, "policy_change", "add_capability screenshot", RiskLimited)

	events := tr.Recent(10)

	require.Len(t, events, 2)
	assert.Equal(t, "policy_change", events[0].Kind)
	assert.Equal(t, "spawn", events[1].Kind)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestTracker_RecentEmpty(t *testing.T) {
	tr := NewTracker(clock.NewManual(time.Unix(1000, 0)))

	assert.Empty(t, tr.Recent(5))
	assert.Empty(t, tr.Recent(0))
}

func TestTracker_TotalsSurviveOverflow(t *testing.T) {
	tr := NewTracker(clock.NewManual(time.Unix(1000, 0)))

	for i := 0; i < ringSize+50; i++ {
		tr.Record(1, "fault", fmt.Sprintf("event %d", i), RiskHigh)
	}

	assert.Len(t, tr.Recent(ringSize+50), ringSize)
	assert.Equal(t, uint64(ringSize+50), tr.Totals()[RiskHigh])
}

func TestTracker_ReportWindow(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	tr := NewTracker(clk)

	tr.Record(1, "old", "outside window", RiskMinimal)
	clk.Advance(10 * time.Minute)
	tr.Record(1, "recent", "inside window", RiskHigh)
	tr.Record(2, "recent", "inside window", RiskHigh)

	rep := tr.Report(time.Minute)

	assert.Equal(t, uint64(2), rep.Total)
	assert.Equal(t, uint64(2), rep.Counts[RiskHigh])
	assert.Zero(t, rep.Counts[RiskMinimal])
}

func TestRiskLevel_Severity(t *testing.T) {
	assert.Greater(t, RiskUnacceptable.Severity(), RiskHigh.Severity())
	assert.Greater(t, RiskHigh.Severity(), RiskLimited.Severity())
	assert.Greater(t, RiskLimited.Severity(), RiskMinimal.Severity())
}

func TestParseRiskLevel(t *testing.T) {
	r, err := ParseRiskLevel("high")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, r)

	_, err = ParseRiskLevel("catastrophic")
	assert.Error(t, err)
}

func TestTracker_ObserverSeesEveryEvent(t *testing.T) {
	tr := NewTracker(clock.NewManual(time.Unix(1000, 0)))

	var seen []Event
	tr.Observe(func(ev Event) { seen = append(seen, ev) })

	tr.Record(1, "policy_change", "add fs_basic", RiskMinimal)
	tr.Record(2, "fault", "crash", RiskHigh)

	require.Len(t, seen, 2)
	assert.Equal(t, "policy_change", seen[0].Kind)
	assert.Equal(t, RiskHigh, seen[1].Risk)
}
