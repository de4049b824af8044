package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

func newTestLog() (*Log, *clock.Manual) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	return New(clk), clk
}

func TestLog_AppendAndRecent(t *testing.T) {
	log, clk := newTestLog()

	log.Append(7, protocol.OpFsList, false)
	clk.Advance(time.Millisecond)
	log.Append(7, protocol.OpAudioPlay, true)

	recs := log.Recent(10)

	require.Len(t, recs, 2)
	assert.Equal(t, protocol.OpAudioPlay, recs[0].Opcode)
	assert.True(t, recs[0].Allowed)
	assert.Equal(t, protocol.OpFsList, recs[1].Opcode)
	assert.False(t, recs[1].Allowed)
	assert.Greater(t, recs[0].TimestampMicros, recs[1].TimestampMicros)
}

func TestLog_RecentOnEmpty(t *testing.T) {
	log, _ := newTestLog()

	assert.Empty(t, log.Recent(5))
	assert.Empty(t, log.Recent(0))
	assert.Zero(t, log.TotalOps())
}

func TestLog_RecentClampedToCount(t *testing.T) {
	log, _ := newTestLog()
	log.Append(1, protocol.OpFsStat, true)

	assert.Len(t, log.Recent(100), 1)
}

func TestLog_TotalSurvivesOverflow(t *testing.T) {
	log, _ := newTestLog()
	n := ringSize + 100

	for i := 0; i < n; i++ {
		log.Append(protocol.AgentID(i%5+1), protocol.OpFsRead, true)
	}

	assert.Equal(t, uint64(n), log.TotalOps())
	assert.Len(t, log.Recent(n), ringSize)
}

func TestLog_OverflowKeepsNewest(t *testing.T) {
	log, clk := newTestLog()

	for i := 0; i < ringSize+1; i++ {
		clk.Advance(time.Microsecond)
		log.Append(protocol.AgentID(1), protocol.Opcode(0x30+byte(i%14)), true)
	}

	recs := log.Recent(ringSize)
	require.Len(t, recs, ringSize)
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].TimestampMicros, recs[i].TimestampMicros)
	}
}

// Total must count every append exactly once under contention.
func TestLog_ConcurrentAppends(t *testing.T) {
	log, _ := newTestLog()

	const workers = 8
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(agent protocol.AgentID) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				log.Append(agent, protocol.OpFsList, true)
			}
		}(protocol.AgentID(w + 1))
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*perWorker), log.TotalOps())
	assert.Len(t, log.Recent(ringSize), ringSize)
}
