package playback

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/voxa-ai/voxa-go/pkg/core/pcm"
)

// OtoSink plays decoded samples through the system speaker. The oto player
// pulls bytes from the sink's buffer, so writes never block on the device.
type OtoSink struct {
	otoCtx  *oto.Context
	player  *oto.Player
	buf     []byte
	mu      sync.Mutex
	cond    *sync.Cond
	playing bool
	closed  bool
}

// NewOtoSink initializes the speaker for the given audio format and waits
// for the device to become ready.
func NewOtoSink(cfg pcm.AudioConfig) (*OtoSink, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatFloat32LE,
		// ~100ms of float32 audio keeps latency low without glitching.
		BufferSize: cfg.SampleRate * cfg.Channels * 4 / 10,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &OtoSink{
		otoCtx: otoCtx,
		buf:    make([]byte, 0, cfg.SampleRate*cfg.Channels*8),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write queues samples for playback, starting the player on first data.
func (s *OtoSink) Write(samples []float32) error {
	data := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("speaker sink is closed")
	}

	s.buf = append(s.buf, data...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player pull loop.
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed && len(s.buf) == 0 {
		// Silence lets oto drain gracefully instead of erroring.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards all pending audio and stops the current playback so the
// next write starts fresh with nothing stale in the device buffer.
func (s *OtoSink) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]

	if s.player != nil && s.playing {
		s.playing = false
		player := s.player
		s.player = nil
		s.mu.Unlock()

		player.Pause()
		player.Reset()
		player.Close()
		return
	}
	s.mu.Unlock()
}

// Close releases the speaker. Further writes fail.
func (s *OtoSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
}
