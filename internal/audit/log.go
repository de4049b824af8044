// Package audit keeps the security trail of gated operations.
//
// Storage is a fixed ring: recent records are queryable, older ones are
// overwritten. The total counter is monotonic and survives overwrites, so
// operators can always tell how many operations were ever gated even when
// the ring no longer holds them.
package audit

import (
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

// Record is one gated operation: who asked, what they asked for, when, and
// whether policy allowed it.
type Record struct {
	AgentID         protocol.AgentID `json:"agent_id"`
	Opcode          protocol.Opcode  `json:"opcode"`
	TimestampMicros uint64           `json:"timestamp_micros"`
	Allowed         bool             `json:"allowed"`
}

// ringSize is the retained window; overflow drops the oldest record.
const ringSize = 256

// Log is the audit trail singleton.
type Log struct {
	mu    sync.Mutex
	ring  [ringSize]Record
	next  int
	count int
	total atomic.Uint64
	clock clock.Clock
}

// New creates an empty log on the given clock.
func New(clk clock.Clock) *Log {
	return &Log{clock: clk}
}

// Append records one gated operation. Appending never fails and never
// blocks on anything but the ring lock.
func (l *Log) Append(agent protocol.AgentID, opcode protocol.Opcode, allowed bool) {
	rec := Record{
		AgentID:         agent,
		Opcode:          opcode,
		TimestampMicros: l.clock.NowMicros(),
		Allowed:         allowed,
	}

	l.mu.Lock()
	l.ring[l.next] = rec
	l.next = (l.next + 1) % ringSize
	if l.count < ringSize {
		l.count++
	}
	l.mu.Unlock()

	l.total.Add(1)
}

// TotalOps reports how many operations were ever appended, including any
// the ring has since dropped.
func (l *Log) TotalOps() uint64 {
	return l.total.Load()
}

// Recent returns up to n records, most recent first.
func (l *Log) Recent(n int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > l.count {
		n = l.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.next - 1 - i + ringSize) % ringSize
		out = append(out, l.ring[idx])
	}
	return out
}
