// Package id generates prefixed ULIDs for records that need a sortable
// timeline: compliance events and escalation reviews. ULIDs sort
// lexicographically by creation time, so a list ordered by ID is ordered
// by time without a second field.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventID identifies a compliance event.
type EventID string

// ReviewID identifies an escalation review.
type ReviewID string

const (
	EventPrefix  = "evt"
	ReviewPrefix = "rev"
)

// Generator produces ULIDs from a guarded entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator backed by crypto/rand.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator on the given entropy source. Tests can
// pass a deterministic reader.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates one ULID stamped with the current wall time.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewEventID generates a compliance event ID.
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

// NewReviewID generates an escalation review ID.
func NewReviewID() ReviewID {
	return ReviewID(Default().GenerateWithPrefix(ReviewPrefix))
}
