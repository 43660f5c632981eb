// Package playback schedules inbound agent audio for gap-free output and
// tracks the in-flight segment set that drives idleness decisions.
package playback

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxa-ai/voxa-go/pkg/core"
	"github.com/voxa-ai/voxa-go/pkg/core/pcm"
)

// Sink receives decoded float samples for output. Flush discards anything
// buffered but not yet audible.
type Sink interface {
	Write(samples []float32) error
	Flush()
}

// DiscardSink drops all samples. Used headless and in tests.
type DiscardSink struct{}

func (DiscardSink) Write([]float32) error { return nil }
func (DiscardSink) Flush()                {}

type segment struct {
	id    string
	start time.Time
	end   time.Time
	timer *time.Timer
}

// Scheduler places successive PCM buffers on a single timeline: each segment
// starts exactly when the previous one ends, never earlier and never later,
// unless the timeline has drained, in which case it starts now. Segments
// leave the in-flight set on natural completion or when Stop halts them all.
type Scheduler struct {
	mu        sync.Mutex
	cfg       pcm.AudioConfig
	sink      Sink
	cursor    time.Time // zero when no timeline is established
	inflight  map[string]*segment
	onDrained func()
	level     float64
}

// NewScheduler creates a scheduler for the given audio format writing to sink.
func NewScheduler(cfg pcm.AudioConfig, sink Sink) *Scheduler {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Scheduler{
		cfg:      cfg,
		sink:     sink,
		inflight: make(map[string]*segment),
	}
}

// SetOnDrained registers a callback invoked after a segment completes
// naturally and leaves the in-flight set. Stop never triggers it.
func (s *Scheduler) SetOnDrained(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrained = fn
}

// Schedule queues one PCM s16le buffer. An empty buffer is an error and
// schedules nothing. The samples are decoded and handed to the sink
// immediately; the segment stays in flight until its scheduled end.
func (s *Scheduler) Schedule(data []byte) error {
	if len(data) == 0 {
		return core.NewEmptyAudioError()
	}

	samples := pcm.DecodeS16(data)
	dur := s.cfg.Duration(len(data))

	s.mu.Lock()
	now := time.Now()
	start := now
	if s.cursor.After(now) {
		start = s.cursor
	}
	end := start.Add(dur)
	s.cursor = end

	seg := &segment{
		id:    uuid.NewString(),
		start: start,
		end:   end,
	}
	s.inflight[seg.id] = seg
	s.level = pcm.CalculateRMSEnergy(data)
	seg.timer = time.AfterFunc(end.Sub(now), func() { s.complete(seg.id) })
	s.mu.Unlock()

	return s.sink.Write(samples)
}

func (s *Scheduler) complete(id string) {
	s.mu.Lock()
	seg, ok := s.inflight[id]
	if ok {
		delete(s.inflight, id)
		if len(s.inflight) == 0 {
			s.level = 0
			s.cursor = time.Time{}
		}
	}
	fn := s.onDrained
	s.mu.Unlock()

	if ok && seg != nil && fn != nil {
		fn()
	}
}

// Stop halts all in-flight segments, clears the set, resets the timeline,
// and flushes the sink. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, seg := range s.inflight {
		seg.timer.Stop()
		delete(s.inflight, id)
	}
	s.cursor = time.Time{}
	s.level = 0
	s.mu.Unlock()

	s.sink.Flush()
}

// InFlight returns the number of segments not yet completed.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Level returns the RMS energy of the most recently scheduled segment in
// [0, 1], or 0 when nothing is in flight.
func (s *Scheduler) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// timeline returns the start and end of every in-flight segment, for tests.
func (s *Scheduler) timeline() []segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]segment, 0, len(s.inflight))
	for _, seg := range s.inflight {
		out = append(out, *seg)
	}
	return out
}
