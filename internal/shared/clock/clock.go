package clock

import (
	"sync"
	"time"
)

// Clock abstracts time access so components that stamp records or refill
// token buckets can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	NowMicros() uint64
}

// System reads the wall clock.
type System struct{}

// NewSystem creates a system clock.
func NewSystem() *System {
	return &System{}
}

func (s *System) Now() time.Time {
	return time.Now()
}

func (s *System) NowMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}

// Manual is a test clock advanced explicitly.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NowMicros() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(m.now.UnixMicro())
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
