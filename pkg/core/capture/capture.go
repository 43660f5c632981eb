// Package capture acquires microphone audio and meters its level. The
// session controller talks to the Engine and Source interfaces so hosts and
// tests can substitute their own audio subsystem.
package capture

import (
	"sync"

	"github.com/voxa-ai/voxa-go/pkg/core/pcm"
)

// Constraints describe the desired capture format. They are advisory: the
// device delivers the closest format it supports.
type Constraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultConstraints returns the preferred conversational capture format:
// mono 16 kHz with echo cancellation on and noise suppression off.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: false,
	}
}

// Config returns the PCM format implied by the constraints.
func (c Constraints) Config() pcm.AudioConfig {
	return pcm.AudioConfig{
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		BitsPerSample: 16,
	}
}

// Source is a started microphone delivering PCM s16le frames.
type Source interface {
	// Frames is the stream of captured audio. It closes when the source closes.
	Frames() <-chan []byte
	// Start begins capture. Safe to call on an already started source.
	Start() error
	// Stop pauses capture without releasing the device.
	Stop() error
	// Close stops capture and releases the device. Idempotent.
	Close() error
}

// Engine is the audio subsystem the session resumes, suspends, and acquires
// microphones from.
type Engine interface {
	// Resume makes the subsystem ready for capture.
	Resume() error
	// Suspend pauses all capture without releasing devices.
	Suspend()
	// AcquireMicrophone opens a microphone matching the constraints.
	AcquireMicrophone(Constraints) (Source, error)
	// Close releases the subsystem and every device it handed out.
	Close()
}

// Meter tracks the RMS level of the most recent audio frame, in [0, 1].
type Meter struct {
	mu    sync.Mutex
	level float64
}

// Observe updates the meter from one PCM s16le frame.
func (m *Meter) Observe(frame []byte) {
	level := pcm.CalculateRMSEnergy(frame)
	m.mu.Lock()
	m.level = level
	m.mu.Unlock()
}

// Level returns the most recent observation.
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Reset zeroes the meter, used when capture is unwired.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.level = 0
	m.mu.Unlock()
}
