package host

import (
	"context"
	"sync"
)

// Mixer is an in-memory audio device model: it tracks the playing track,
// the volume, and synthesizes silence for capture requests. Real device
// output is a deployment concern behind the same interface.
type Mixer struct {
	mu      sync.Mutex
	playing bool
	track   uint32
	volume  byte
}

// NewMixer creates a mixer with volume 50.
func NewMixer() *Mixer {
	return &Mixer{volume: 50}
}

// Play starts playback of a track.
func (m *Mixer) Play(ctx context.Context, track uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = true
	m.track = track
	return nil
}

// Stop halts playback. Stopping an idle mixer is a no-op.
func (m *Mixer) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	return nil
}

// SetVolume sets the output level, 0 to 100.
func (m *Mixer) SetVolume(ctx context.Context, level byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = level
	return nil
}

// Record synthesizes a silent PCM buffer: 16 kHz mono, 16-bit samples.
func (m *Mixer) Record(ctx context.Context, durationMillis uint32) ([]byte, error) {
	const bytesPerMilli = 16 * 2
	return make([]byte, int(durationMillis)*bytesPerMilli), nil
}

// Playing reports the current playback state.
func (m *Mixer) Playing() (bool, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing, m.track
}

// Volume returns the current output level.
func (m *Mixer) Volume() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}
