package voxa

import (
	"github.com/voxa-ai/voxa-go/pkg/core"
)

// Event is dispatched by a Session to its consumer. Events never block the
// session: when the consumer stops draining, new events are dropped.
type Event interface {
	EventType() string
}

// OpenEvent signals the socket became ready and the session is live.
type OpenEvent struct{}

func (OpenEvent) EventType() string { return "socket open" }

// CloseEvent signals the socket closed, carrying the close detail.
type CloseEvent struct {
	Code   int
	Reason string
}

func (CloseEvent) EventType() string { return "socket close" }

// ErrorEvent carries a typed session error: missing preconditions, setup and
// transport failures, and non-fatal data anomalies.
type ErrorEvent struct {
	Err *core.Error
}

func (ErrorEvent) EventType() string { return "error" }

// StructuredMessageEvent carries every well-formed inbound JSON message,
// recognized turn-taking types included.
type StructuredMessageEvent struct {
	Type   string
	Fields map[string]any
	Raw    []byte
}

func (StructuredMessageEvent) EventType() string { return "structured message" }

// ClientMessageEvent echoes an outbound text payload in parsed form.
type ClientMessageEvent struct {
	Fields map[string]any
	Raw    []byte
}

func (ClientMessageEvent) EventType() string { return "client message" }

// StatusChangedEvent signals a coarse status transition.
type StatusChangedEvent struct {
	Status Status
}

func (StatusChangedEvent) EventType() string { return "status changed" }
