package voxa

import (
	"log/slog"
	"time"

	"github.com/voxa-ai/voxa-go/pkg/core/capture"
	"github.com/voxa-ai/voxa-go/pkg/core/playback"
)

const (
	defaultIdleTimeout = 10 * time.Second
	defaultEventBuffer = 256
)

// SessionOption configures a Session at construction time.
type SessionOption func(*Session)

// WithKey sets the credential sent as a bearer token when connecting.
func WithKey(key string) SessionOption {
	return func(s *Session) {
		s.key = key
	}
}

// WithServerURL sets the agent service address (ws(s) or http(s)).
func WithServerURL(serverURL string) SessionOption {
	return func(s *Session) {
		s.serverURL = serverURL
	}
}

// WithSettings sets the session configuration payload sent as the first
// outbound message after the socket opens. Must be valid JSON.
func WithSettings(settings []byte) SessionOption {
	return func(s *Session) {
		s.settings = append([]byte(nil), settings...)
	}
}

// WithIdleTimeout sets the quiet period after which the session disconnects.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.idleDelay = d
		}
	}
}

// WithAudioEngine substitutes the audio subsystem. Without it the session
// initializes the system audio stack on first connect.
func WithAudioEngine(engine capture.Engine) SessionOption {
	return func(s *Session) {
		s.engine = engine
	}
}

// WithConstraints overrides the microphone constraints.
func WithConstraints(c capture.Constraints) SessionOption {
	return func(s *Session) {
		s.constraints = c
	}
}

// WithSink sets the playback output. Without it agent audio is scheduled and
// metered but not rendered.
func WithSink(sink playback.Sink) SessionOption {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.eventBuffer = n
		}
	}
}
