package voxa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxa-ai/voxa-go/pkg/agent/protocol"
	"github.com/voxa-ai/voxa-go/pkg/core"
	"github.com/voxa-ai/voxa-go/pkg/core/capture"
	"github.com/voxa-ai/voxa-go/pkg/core/outcome"
	"github.com/voxa-ai/voxa-go/pkg/core/pcm"
	"github.com/voxa-ai/voxa-go/pkg/core/playback"
)

// Status is the coarse externally-observed session state.
type Status string

const (
	// StatusNotStarted means the session has never been live.
	StatusNotStarted Status = "not-started"
	// StatusActive means the socket is open and audio is flowing.
	StatusActive Status = "active"
	// StatusSleeping means the session was live and has since torn down.
	StatusSleeping Status = "sleeping"
)

// SpeakingParty identifies which side currently holds the conversational turn.
type SpeakingParty int

const (
	// PartyNone means neither side is speaking.
	PartyNone SpeakingParty = iota
	// PartyUser means the user holds the turn.
	PartyUser
	// PartyAgent means the agent holds the turn.
	PartyAgent
)

// String returns a human-readable party name.
func (p SpeakingParty) String() string {
	switch p {
	case PartyUser:
		return "user"
	case PartyAgent:
		return "agent"
	default:
		return "none"
	}
}

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateConnecting
	stateLive
)

// Session holds one live voice conversation with the agent service: mic PCM
// streams up the socket, JSON control frames and PCM audio stream down.
//
// The connection handle exists iff the session is live. The capture source,
// connection, and idle timer are mutated only by the session; the playback
// scheduler's in-flight set is mutated only by the scheduler itself.
type Session struct {
	key         string
	serverURL   string
	constraints capture.Constraints
	sink        playback.Sink
	logger      *slog.Logger
	eventBuffer int
	idleDelay   time.Duration

	mu          sync.Mutex
	settings    []byte
	engine      capture.Engine
	ownEngine   bool
	state       lifecycle
	started     bool
	gen         uint64
	conn        *websocket.Conn
	mic         capture.Source
	forwardStop chan struct{}
	readDone    chan struct{}
	scheduler   *playback.Scheduler
	party       SpeakingParty

	writeMu sync.Mutex

	captureMeter capture.Meter
	idle         *IdleTimer

	events    chan Event
	triggers  chan func()
	closeOnce sync.Once
}

// NewSession creates a session. It does not touch the network or the audio
// hardware until Connect.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		constraints: capture.DefaultConstraints(),
		logger:      slog.Default(),
		eventBuffer: defaultEventBuffer,
		idleDelay:   defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.events = make(chan Event, s.eventBuffer)
	s.triggers = make(chan func(), 16)
	s.idle = NewIdleTimer(s.idleDelay, s.idleExpired)

	go func() {
		for fn := range s.triggers {
			fn()
		}
	}()

	return s
}

// Events yields session events. Events are dropped, not blocked on, when the
// consumer stops draining.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Status reports the coarse session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	switch {
	case s.state == stateLive:
		return StatusActive
	case s.started:
		return StatusSleeping
	default:
		return StatusNotStarted
	}
}

// SpeakingParty reports which side currently holds the turn.
func (s *Session) SpeakingParty() SpeakingParty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.party
}

// CaptureVolume is the RMS level of the most recent microphone frame in
// [0, 1]. Zero while not live.
func (s *Session) CaptureVolume() float64 {
	s.mu.Lock()
	live := s.state == stateLive
	s.mu.Unlock()
	if !live {
		return 0
	}
	return s.captureMeter.Level()
}

// PlaybackVolume is the RMS level of the most recently scheduled agent audio
// in [0, 1]. Zero while not live or when nothing is in flight.
func (s *Session) PlaybackVolume() float64 {
	s.mu.Lock()
	scheduler := s.scheduler
	live := s.state == stateLive
	s.mu.Unlock()
	if !live || scheduler == nil {
		return 0
	}
	return scheduler.Level()
}

// Connect validates preconditions, acquires the microphone and the socket
// concurrently, and brings the session live. Every failure is reported as an
// ErrorEvent and returned; setup and transport failures run a full defensive
// teardown first. A session that is already connecting or live rejects the
// call.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return core.NewFailedSetupError("session is already connecting or live")
	}

	// Preconditions, in order, first missing one wins.
	var precondition *core.Error
	switch {
	case strings.TrimSpace(s.key) == "":
		precondition = core.NewNoKeyError()
	case strings.TrimSpace(s.serverURL) == "":
		precondition = core.NewNoURLError()
	case len(s.settings) == 0:
		precondition = core.NewNoConfigError()
	}
	if precondition != nil {
		s.mu.Unlock()
		s.emit(ErrorEvent{Err: precondition})
		return precondition
	}

	s.state = stateConnecting
	s.gen++
	gen := s.gen
	serverURL := s.serverURL
	key := s.key
	settings := append([]byte(nil), s.settings...)
	s.mu.Unlock()

	if err := s.establish(ctx, gen, serverURL, key, settings); err != nil {
		s.teardown(gen, "connect failed")
		var se *core.Error
		if !errors.As(err, &se) {
			se = core.NewFailedSetupError(err.Error())
		}
		s.emit(ErrorEvent{Err: se})
		return se
	}
	return nil
}

func (s *Session) establish(ctx context.Context, gen uint64, serverURL, key string, settings []byte) error {
	engine, err := s.ensureEngine()
	if err != nil {
		return err
	}
	if err := engine.Resume(); err != nil {
		return err
	}

	// Acquire the microphone and open the socket concurrently. Each side
	// parks its handle on the session as soon as it succeeds so a racing
	// disconnect can release it; a superseded attempt releases its own.
	combined := outcome.Join2(ctx,
		func(context.Context) outcome.Outcome[capture.Source] {
			src, acquireErr := engine.AcquireMicrophone(s.constraints)
			if acquireErr != nil {
				return outcome.Fail[capture.Source](acquireErr)
			}
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				_ = src.Close()
				return outcome.Fail[capture.Source](core.NewFailedSetupError("connect attempt superseded"))
			}
			s.mic = src
			s.mu.Unlock()
			return outcome.Ok(src)
		},
		func(dialCtx context.Context) outcome.Outcome[*websocket.Conn] {
			conn, dialErr := dialAgent(dialCtx, serverURL, key)
			if dialErr != nil {
				return outcome.Fail[*websocket.Conn](dialErr)
			}
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				_ = conn.Close()
				return outcome.Fail[*websocket.Conn](core.NewFailedSetupError("connect attempt superseded"))
			}
			s.conn = conn
			s.mu.Unlock()
			return outcome.Ok(conn)
		},
	)

	// The settings must re-serialize as well-formed JSON before anything
	// goes on the wire.
	ready := outcome.Then(combined, func(p outcome.Pair[capture.Source, *websocket.Conn]) outcome.Outcome[[]byte] {
		canonical, canonErr := protocol.CanonicalizeSettings(settings)
		if canonErr != nil {
			return outcome.Fail[[]byte](core.NewFailedSetupError(canonErr.Error()))
		}
		return outcome.Ok(canonical)
	})

	canonical, err := ready.Unwrap()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.state != stateConnecting {
		s.mu.Unlock()
		return core.NewFailedSetupError("connect attempt superseded")
	}
	conn := s.conn
	mic := s.mic
	s.scheduler = playback.NewScheduler(pcm.DefaultPlaybackConfig(), s.sink)
	s.scheduler.SetOnDrained(func() { s.maybeIdle(gen) })
	s.party = PartyNone
	s.forwardStop = make(chan struct{})
	stop := s.forwardStop
	s.readDone = make(chan struct{})
	readDone := s.readDone
	s.state = stateLive
	s.started = true
	s.mu.Unlock()

	s.emit(OpenEvent{})
	s.emit(StatusChangedEvent{Status: StatusActive})
	s.logger.Debug("session live", "server", serverURL)

	// The settings payload is the first outbound message.
	if err := s.write(conn, websocket.TextMessage, canonical); err != nil {
		return core.NewSocketClosedError(fmt.Sprintf("send settings: %v", err))
	}

	if err := mic.Start(); err != nil {
		return err
	}
	go s.forwardCapture(conn, mic, stop)
	go s.readLoop(conn, readDone)

	s.idle.Restart()
	return nil
}

func (s *Session) ensureEngine() (capture.Engine, error) {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine != nil {
		return engine, nil
	}

	malgoEngine, err := capture.NewMalgoEngine()
	if err != nil {
		return nil, core.NewFailedSetupError(err.Error())
	}
	s.mu.Lock()
	s.engine = malgoEngine
	s.ownEngine = true
	s.mu.Unlock()
	return malgoEngine, nil
}

// forwardCapture streams microphone frames to the socket until the capture
// tap is unwired or the source closes.
func (s *Session) forwardCapture(conn *websocket.Conn, mic capture.Source, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-mic.Frames():
			if !ok {
				return
			}
			s.captureMeter.Observe(frame)
			if err := s.write(conn, websocket.BinaryMessage, frame); err != nil {
				s.logger.Debug("capture forward stopped", "error", err)
				return
			}
		}
	}
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			reason := err.Error()
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
				reason = closeErr.Text
			}
			s.handleRemoteClose(conn, code, reason)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleAudio(data)
		case websocket.TextMessage:
			s.handleText(data)
		}
	}
}

// handleRemoteClose reacts to the socket closing underneath a live session:
// it stops capture forwarding, cancels the idle timer, and notifies
// listeners. Audio resources stay acquired until Disconnect runs.
func (s *Session) handleRemoteClose(conn *websocket.Conn, code int, reason string) {
	s.mu.Lock()
	if s.conn != conn {
		// A teardown already took this connection.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	if s.forwardStop != nil {
		close(s.forwardStop)
		s.forwardStop = nil
	}
	s.state = stateIdle
	status := s.statusLocked()
	s.mu.Unlock()

	s.idle.Cancel()
	_ = conn.Close()

	s.logger.Debug("socket closed by remote", "code", code, "reason", reason)
	s.emit(CloseEvent{Code: code, Reason: reason})
	s.emit(StatusChangedEvent{Status: status})
}

// handleAudio schedules a binary frame for playback. Binary frames never
// affect turn-taking state.
func (s *Session) handleAudio(data []byte) {
	s.mu.Lock()
	scheduler := s.scheduler
	s.mu.Unlock()

	if len(data) == 0 {
		s.emit(ErrorEvent{Err: core.NewEmptyAudioError()})
		return
	}
	if scheduler == nil {
		// Torn down under the read loop; nothing to play it on.
		return
	}
	if err := scheduler.Schedule(data); err != nil {
		var se *core.Error
		if !errors.As(err, &se) {
			// The only untyped failure here is the output device.
			se = core.NewFailedSetupError(err.Error())
			s.logger.Debug("playback sink write failed", "error", err)
		}
		s.emit(ErrorEvent{Err: se})
	}
}

// handleText classifies a text frame and updates turn-taking state. Every
// well-formed message also surfaces as a structured message event.
func (s *Session) handleText(data []byte) {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		s.emit(ErrorEvent{Err: core.NewUnknownMessageError(err.Error())})
		return
	}

	s.mu.Lock()
	gen := s.gen
	scheduler := s.scheduler
	var bargeIn, reevaluate bool
	switch msg.Type {
	case protocol.TypeUserStartedSpeaking:
		s.party = PartyUser
		bargeIn = true
	case protocol.TypeEndOfThought:
		if s.party == PartyUser {
			s.party = PartyNone
			reevaluate = true
		}
	case protocol.TypeAgentStartedSpeaking:
		s.party = PartyAgent
	case protocol.TypeAgentAudioDone:
		if s.party == PartyAgent {
			s.party = PartyNone
		}
		reevaluate = true
	}
	s.mu.Unlock()

	if bargeIn {
		// Barge-in: cut agent audio before anything else observes the turn.
		if scheduler != nil {
			scheduler.Stop()
		}
		s.idle.Cancel()
	}
	if reevaluate {
		s.maybeIdle(gen)
	}

	s.emit(StructuredMessageEvent{Type: msg.Type, Fields: msg.Fields, Raw: msg.Raw})
}

// idleExpired runs when the quiet period elapses. The idleness predicates
// are re-checked at fire time: audio that arrived or a turn that started
// after the timer was armed defers the disconnect until the next re-arm.
func (s *Session) idleExpired() {
	s.mu.Lock()
	quiet := s.state == stateLive &&
		s.party == PartyNone &&
		(s.scheduler == nil || s.scheduler.InFlight() == 0)
	s.mu.Unlock()

	if quiet {
		_ = s.Disconnect(context.Background(), "idle timeout")
	}
}

// maybeIdle re-arms the idle timer, but only when no playback segments are
// in flight and no party is speaking.
func (s *Session) maybeIdle(gen uint64) {
	s.mu.Lock()
	idle := s.gen == gen &&
		s.state == stateLive &&
		s.party == PartyNone &&
		s.scheduler != nil &&
		s.scheduler.InFlight() == 0
	s.mu.Unlock()

	if idle {
		s.idle.Restart()
	}
}

// Disconnect tears the session down: stop playback, suspend audio, unwire
// capture, close the socket with the given reason, release the microphone,
// and mark the session not-live. Idempotent and safe from any state,
// including mid-connect.
func (s *Session) Disconnect(ctx context.Context, reason string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.teardown(gen, reason)
	return nil
}

// teardown runs the ordered release sequence. Each step is independent of
// the others succeeding; a stale generation no-ops entirely.
func (s *Session) teardown(gen uint64, reason string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	scheduler := s.scheduler
	s.scheduler = nil
	engine := s.engine
	mic := s.mic
	s.mic = nil
	conn := s.conn
	s.conn = nil
	stop := s.forwardStop
	s.forwardStop = nil
	readDone := s.readDone
	s.readDone = nil
	wasLive := s.state == stateLive
	s.state = stateIdle
	s.party = PartyNone
	status := s.statusLocked()
	s.mu.Unlock()

	s.idle.Cancel()

	// 1. Halt in-flight playback and reset the cursor.
	if scheduler != nil {
		scheduler.Stop()
	}
	// 2. Suspend the audio subsystem.
	if engine != nil {
		engine.Suspend()
	}
	// 3. Unwire the capture tap; an already-unwired tap is normal.
	if stop != nil {
		close(stop)
	}
	s.captureMeter.Reset()
	// 4. Close the socket: send the close frame carrying the reason, then
	//    wait for the peer's acknowledgment (the read loop exiting) before
	//    dropping the transport.
	if conn != nil {
		deadline := time.Now().Add(closeAckTimeout)
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
		s.writeMu.Unlock()
		if readDone != nil {
			select {
			case <-readDone:
			case <-time.After(closeAckTimeout):
			}
		}
		_ = conn.Close()
	}
	// 5. Release the microphone and its hardware tracks.
	if mic != nil {
		_ = mic.Close()
	}
	// 6. Mark not-live.
	if wasLive {
		s.emit(CloseEvent{Code: websocket.CloseNormalClosure, Reason: reason})
		s.emit(StatusChangedEvent{Status: status})
	}
	if reason != "" {
		s.logger.Debug("session disconnected", "reason", reason)
	}
}

// Restart disconnects then connects.
func (s *Session) Restart(ctx context.Context) error {
	_ = s.Disconnect(ctx, "restart")
	return s.Connect(ctx)
}

// SendClientMessage forwards a payload to the agent while live. Binary
// payloads go out as binary frames. Text payloads (string or
// json.RawMessage) must be well-formed JSON; they go out as text frames and
// echo back as a client message event.
func (s *Session) SendClientMessage(payload any) error {
	s.mu.Lock()
	conn := s.conn
	live := s.state == stateLive
	s.mu.Unlock()
	if !live || conn == nil {
		return core.NewSocketClosedError("session is not live")
	}

	switch v := payload.(type) {
	case []byte:
		return s.write(conn, websocket.BinaryMessage, v)
	case json.RawMessage:
		return s.sendClientText(conn, []byte(v))
	case string:
		return s.sendClientText(conn, []byte(v))
	default:
		return core.NewUnknownMessageError(fmt.Sprintf("unsupported payload type %T", payload))
	}
}

func (s *Session) sendClientText(conn *websocket.Conn, raw []byte) error {
	fields, err := protocol.DecodeClientPayload(raw)
	if err != nil {
		return core.NewUnknownMessageError(err.Error())
	}
	if err := s.write(conn, websocket.TextMessage, raw); err != nil {
		return core.NewSocketClosedError(err.Error())
	}
	s.emit(ClientMessageEvent{Fields: fields, Raw: raw})
	return nil
}

func (s *Session) write(conn *websocket.Conn, messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

// SetSettings replaces the session configuration and triggers the matching
// lifecycle change asynchronously: absent to present connects, present to
// absent disconnects, present to different restarts. Triggers run serially
// and read the settings at execution time, so several mutations applied
// together are all visible to the connect they cause.
func (s *Session) SetSettings(settings []byte) {
	s.mu.Lock()
	old := s.settings
	if settings == nil {
		s.settings = nil
	} else {
		s.settings = append([]byte(nil), settings...)
	}
	had := len(old) > 0
	has := len(settings) > 0
	changed := had && has && !bytes.Equal(old, settings)
	s.mu.Unlock()

	switch {
	case !had && has:
		s.enqueue(func() { _ = s.Connect(context.Background()) })
	case had && !has:
		s.enqueue(func() { _ = s.Disconnect(context.Background(), "settings cleared") })
	case changed:
		s.enqueue(func() { _ = s.Restart(context.Background()) })
	}
}

func (s *Session) enqueue(fn func()) {
	defer func() {
		// A closed trigger queue means the session is shut down; the
		// lifecycle change it would cause is moot.
		_ = recover()
	}()
	s.triggers <- fn
}

// SetIdleTimeout replaces the idle delay. The value is seconds; anything
// that does not parse as a number is ignored.
func (s *Session) SetIdleTimeout(value string) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		s.logger.Debug("ignoring unparseable idle timeout", "value", value)
		return
	}
	s.idle.SetDelay(time.Duration(seconds * float64(time.Second)))
}

// SetKey replaces the credential read by the next connect.
func (s *Session) SetKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
}

// SetServerURL replaces the server address read by the next connect.
func (s *Session) SetServerURL(serverURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverURL = serverURL
}

// Close disconnects, stops the trigger worker, and releases an audio engine
// the session created itself. The session cannot be reused afterwards.
func (s *Session) Close() error {
	err := s.Disconnect(context.Background(), "session closed")
	s.closeOnce.Do(func() {
		close(s.triggers)
		s.mu.Lock()
		engine := s.engine
		own := s.ownEngine
		s.engine = nil
		s.mu.Unlock()
		if own && engine != nil {
			engine.Close()
		}
	})
	return err
}

func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Debug("dropping event, consumer not draining", "type", event.EventType())
	}
}
