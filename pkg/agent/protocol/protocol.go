// Package protocol describes the wire protocol between the SDK and the
// conversational-agent service: binary frames carry raw linear-16 PCM, text
// frames carry JSON with a "type" discriminant and an otherwise open schema.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Turn-taking message types the session controller reacts to. Any other
// type passes through to the host application unclassified.
const (
	TypeUserStartedSpeaking  = "UserStartedSpeaking"
	TypeEndOfThought         = "EndOfThought"
	TypeAgentStartedSpeaking = "AgentStartedSpeaking"
	TypeAgentAudioDone       = "AgentAudioDone"
)

// DecodeError reports a text frame that could not be decoded.
type DecodeError struct {
	Message string
	Detail  string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Detail) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Detail)
}

func badFrame(message, detail string) *DecodeError {
	return &DecodeError{Message: message, Detail: detail}
}

// ServerMessage is a decoded inbound text frame. Type is the discriminant
// (empty when the frame carries none), Fields the full parsed payload, and
// Raw the original bytes for pass-through delivery.
type ServerMessage struct {
	Type   string
	Fields map[string]any
	Raw    []byte
}

// IsTurnEvent reports whether the message participates in turn-taking.
func (m ServerMessage) IsTurnEvent() bool {
	switch m.Type {
	case TypeUserStartedSpeaking, TypeEndOfThought, TypeAgentStartedSpeaking, TypeAgentAudioDone:
		return true
	default:
		return false
	}
}

// DecodeServerMessage parses an inbound text frame. Well-formedness is the
// only requirement: unknown types decode fine, malformed JSON does not.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return ServerMessage{}, badFrame("invalid json frame", err.Error())
	}

	msg := ServerMessage{Fields: fields, Raw: data}
	if t, ok := fields["type"].(string); ok {
		msg.Type = strings.TrimSpace(t)
	}
	return msg, nil
}

// DecodeClientPayload parses an outbound text payload the host application
// asked to send, so it can be echoed back as a structured value.
func DecodeClientPayload(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, badFrame("invalid client payload", err.Error())
	}
	return fields, nil
}

// CanonicalizeSettings parses and re-marshals a settings payload so the
// first frame on the wire is compact, key-stable JSON. Settings that do not
// parse are a setup failure, not a wire error.
func CanonicalizeSettings(settings []byte) ([]byte, error) {
	var parsed any
	if err := json.Unmarshal(settings, &parsed); err != nil {
		return nil, badFrame("settings are not valid json", err.Error())
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(parsed); err != nil {
		return nil, badFrame("settings did not re-encode", err.Error())
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
