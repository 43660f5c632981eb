// Package pcm holds linear PCM helpers shared by capture and playback:
// sample conversion, level metering, and bounded audio buffers.
package pcm

import (
	"math"
	"sync"
	"time"
)

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultCaptureConfig returns the microphone format: mono 16 kHz s16le.
func DefaultCaptureConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// DefaultPlaybackConfig returns the agent audio format: mono 24 kHz s16le.
func DefaultPlaybackConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// Duration returns the playing time of the given byte count.
func (c AudioConfig) Duration(bytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}

// BytesFor returns the byte count for the given duration.
func (c AudioConfig) BytesFor(d time.Duration) int {
	return int(d * time.Duration(c.BytesPerSecond()) / time.Second)
}

// DecodeS16 converts 16-bit signed little-endian PCM to float samples in
// [-1, 1). Each sample is divided by 32768; a trailing odd byte is dropped.
func DecodeS16(data []byte) []float32 {
	samples := make([]float32, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		samples = append(samples, float32(sample)/32768.0)
	}
	return samples
}

// CalculateRMSEnergy computes the root-mean-square energy of PCM audio.
// Input is assumed to be 16-bit signed little-endian PCM.
// Returns a value between 0.0 and 1.0.
func CalculateRMSEnergy(data []byte) float64 {
	samples := len(data) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// CalculatePeakAmplitude returns the maximum absolute amplitude in the PCM data.
// Returns a value between 0.0 and 1.0.
func CalculatePeakAmplitude(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		// float64 avoids overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}

// Buffer accumulates PCM audio chunks with a configurable maximum size.
// When full, the oldest data is discarded.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
	config   AudioConfig
}

// NewBuffer creates a buffer that holds up to maxDuration of audio.
func NewBuffer(config AudioConfig, maxDuration time.Duration) *Buffer {
	maxBytes := config.BytesFor(maxDuration)
	return &Buffer{
		data:     make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
		config:   config,
	}
}

// Write appends audio data, trimming the oldest bytes past the maximum.
func (b *Buffer) Write(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, data...)
	if len(b.data) > b.maxBytes {
		excess := len(b.data) - b.maxBytes
		b.data = b.data[excess:]
	}
}

// Read returns a copy of all buffered audio data.
func (b *Buffer) Read() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]byte, len(b.data))
	copy(result, b.data)
	return result
}

// Take returns up to n bytes from the front of the buffer and removes them.
func (b *Buffer) Take(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.data) {
		n = len(b.data)
	}
	result := make([]byte, n)
	copy(result, b.data[:n])
	b.data = b.data[n:]
	return result
}

// Len returns the current buffer size in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Duration returns the playing time of the buffered audio.
func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.Duration(len(b.data))
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// RMSEnergy calculates the RMS energy of the buffered audio.
func (b *Buffer) RMSEnergy() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CalculateRMSEnergy(b.data)
}
