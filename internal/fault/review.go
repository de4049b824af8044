package fault

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

// ErrUnknownReview reports a resolve aimed at a review that does not exist
// or was already resolved.
var ErrUnknownReview = errors.New("unknown review")

// ReviewRecord is one escalated fault awaiting a human decision. Opening a
// review mutates nothing about the agent.
type ReviewRecord struct {
	ID              string           `json:"id"`
	AgentID         protocol.AgentID `json:"agent_id"`
	Kind            Kind             `json:"kind"`
	Detail          string           `json:"detail"`
	TimestampMicros uint64           `json:"timestamp_micros"`
}

// ReviewQueue holds pending escalations.
type ReviewQueue struct {
	mu      sync.Mutex
	pending map[string]ReviewRecord
	clock   clock.Clock
}

// NewReviewQueue creates an empty queue on the given clock.
func NewReviewQueue(clk clock.Clock) *ReviewQueue {
	return &ReviewQueue{
		pending: make(map[string]ReviewRecord),
		clock:   clk,
	}
}

// Open files a review for an escalated fault and returns the record.
func (q *ReviewQueue) Open(f Fault) ReviewRecord {
	rec := ReviewRecord{
		ID:              uuid.NewString(),
		AgentID:         f.AgentID,
		Kind:            f.Kind,
		Detail:          f.Detail,
		TimestampMicros: q.clock.NowMicros(),
	}

	q.mu.Lock()
	q.pending[rec.ID] = rec
	q.mu.Unlock()
	return rec
}

// Pending returns all open reviews, oldest first.
func (q *ReviewQueue) Pending() []ReviewRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]ReviewRecord, 0, len(q.pending))
	for _, rec := range q.pending {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TimestampMicros < out[j].TimestampMicros
	})
	return out
}

// Resolve closes a review.
func (q *ReviewQueue) Resolve(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[id]; !ok {
		return ErrUnknownReview
	}
	delete(q.pending, id)
	return nil
}
