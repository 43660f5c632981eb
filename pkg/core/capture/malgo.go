package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/voxa-ai/voxa-go/pkg/core"
	"github.com/voxa-ai/voxa-go/pkg/core/pcm"
)

// framePeriod is the duration of each frame handed to the consumer. Device
// callbacks are coalesced so frames always come out this size.
const framePeriod = 20 * time.Millisecond

// MalgoEngine backs the Engine interface with the system audio stack.
type MalgoEngine struct {
	ctx *malgo.AllocatedContext

	mu      sync.Mutex
	sources []*malgoSource
	closed  bool
}

// NewMalgoEngine initializes the system audio context.
func NewMalgoEngine() (*MalgoEngine, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoEngine{ctx: ctx}, nil
}

// Resume makes the engine ready. The context stays initialized across
// suspend cycles, so there is nothing to re-acquire here.
func (e *MalgoEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return core.NewFailedSetupError("audio engine is closed")
	}
	return nil
}

// Suspend stops every acquired microphone without releasing it.
func (e *MalgoEngine) Suspend() {
	e.mu.Lock()
	sources := make([]*malgoSource, len(e.sources))
	copy(sources, e.sources)
	e.mu.Unlock()

	for _, s := range sources {
		_ = s.Stop()
	}
}

// AcquireMicrophone opens a capture device. Echo cancellation and noise
// suppression are left to the platform; the constraints carry them so a
// different engine can honor them.
func (e *MalgoEngine) AcquireMicrophone(c Constraints) (Source, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, core.NewUserMediaError("audio engine is closed")
	}
	ctx := e.ctx
	e.mu.Unlock()

	frameBytes := c.Config().BytesFor(framePeriod)
	src := &malgoSource{
		frames:     make(chan []byte, 64),
		pending:    pcm.NewBuffer(c.Config(), time.Second),
		frameBytes: frameBytes,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(c.Channels)
	deviceConfig.SampleRate = uint32(c.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(framePeriod / time.Millisecond)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			// Coalesce whatever the device delivers into fixed-size frames.
			// Never block the device callback; drop when the consumer lags.
			src.pending.Write(input)
			for src.pending.Len() >= src.frameBytes {
				select {
				case src.frames <- src.pending.Take(src.frameBytes):
				default:
					src.pending.Clear()
					return
				}
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, core.NewUserMediaError(err.Error())
	}
	src.device = device

	e.mu.Lock()
	e.sources = append(e.sources, src)
	e.mu.Unlock()

	return src, nil
}

// Close releases every device and the audio context.
func (e *MalgoEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sources := e.sources
	e.sources = nil
	e.mu.Unlock()

	for _, s := range sources {
		_ = s.Close()
	}
	_ = e.ctx.Uninit()
	e.ctx.Free()
}

type malgoSource struct {
	device     *malgo.Device
	frames     chan []byte
	pending    *pcm.Buffer
	frameBytes int

	mu     sync.Mutex
	closed bool
}

func (s *malgoSource) Frames() <-chan []byte {
	return s.frames
}

func (s *malgoSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.NewUserMediaError("microphone is closed")
	}
	if s.device.IsStarted() {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return core.NewUserMediaError(err.Error())
	}
	return nil
}

func (s *malgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.device.IsStarted() {
		return nil
	}
	return s.device.Stop()
}

func (s *malgoSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.device.Stop()
	s.device.Uninit()
	close(s.frames)
	return nil
}
