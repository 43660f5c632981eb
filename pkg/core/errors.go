// Package core holds the shared error taxonomy for the Voxa SDK.
package core

import (
	"errors"
	"fmt"
)

// Error is the typed error returned by every public SDK entry point.
type Error struct {
	Variant ErrorVariant `json:"variant"`
	Message string       `json:"message"`
	Detail  string       `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Variant, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Variant, e.Message)
}

// ErrorVariant categorizes session errors.
type ErrorVariant string

const (
	// ErrNoKey means no API key was configured before connecting.
	ErrNoKey ErrorVariant = "no_key"
	// ErrNoURL means no server address was configured before connecting.
	ErrNoURL ErrorVariant = "no_url"
	// ErrNoConfig means no session settings were configured before connecting.
	ErrNoConfig ErrorVariant = "no_config"
	// ErrFailedSetup means local resource construction failed (audio engine,
	// malformed server address, settings that do not serialize).
	ErrFailedSetup ErrorVariant = "failed_setup"
	// ErrUserMedia means the microphone could not be acquired.
	ErrUserMedia ErrorVariant = "failed_to_connect_user_media"
	// ErrSocketClosed means the server rejected or dropped the connection
	// before it became usable.
	ErrSocketClosed ErrorVariant = "socket_closed"
	// ErrConnectionTimeout means the connection attempt exceeded its deadline.
	ErrConnectionTimeout ErrorVariant = "connection_timeout"
	// ErrEmptyAudio means a zero-length audio payload was received or scheduled.
	ErrEmptyAudio ErrorVariant = "empty_audio"
	// ErrUnknownMessage means a text frame was not well-formed JSON.
	ErrUnknownMessage ErrorVariant = "unknown_message"
)

// NewNoKeyError reports a missing API key.
func NewNoKeyError() *Error {
	return &Error{Variant: ErrNoKey, Message: "no API key configured"}
}

// NewNoURLError reports a missing server address.
func NewNoURLError() *Error {
	return &Error{Variant: ErrNoURL, Message: "no server address configured"}
}

// NewNoConfigError reports missing session settings.
func NewNoConfigError() *Error {
	return &Error{Variant: ErrNoConfig, Message: "no session settings configured"}
}

// NewFailedSetupError reports a local setup failure.
func NewFailedSetupError(detail string) *Error {
	return &Error{Variant: ErrFailedSetup, Message: "session setup failed", Detail: detail}
}

// NewUserMediaError reports a microphone acquisition failure.
func NewUserMediaError(detail string) *Error {
	return &Error{Variant: ErrUserMedia, Message: "could not acquire microphone", Detail: detail}
}

// NewSocketClosedError reports a connection rejected or dropped before ready.
func NewSocketClosedError(detail string) *Error {
	return &Error{Variant: ErrSocketClosed, Message: "socket closed before ready", Detail: detail}
}

// NewConnectionTimeoutError reports a connection attempt that hit its deadline.
func NewConnectionTimeoutError(detail string) *Error {
	return &Error{Variant: ErrConnectionTimeout, Message: "connection attempt timed out", Detail: detail}
}

// NewEmptyAudioError reports a zero-length audio payload.
func NewEmptyAudioError() *Error {
	return &Error{Variant: ErrEmptyAudio, Message: "empty audio payload"}
}

// NewUnknownMessageError reports an unparseable text frame.
func NewUnknownMessageError(detail string) *Error {
	return &Error{Variant: ErrUnknownMessage, Message: "unparseable message", Detail: detail}
}

// IsFatal reports whether the error ends the connection attempt it occurred
// in. Missing preconditions and per-frame data anomalies are not fatal.
func (e *Error) IsFatal() bool {
	switch e.Variant {
	case ErrFailedSetup, ErrUserMedia, ErrSocketClosed, ErrConnectionTimeout:
		return true
	default:
		return false
	}
}

// VariantOf extracts the variant from any error, or the empty string when the
// error is not a session Error.
func VariantOf(err error) ErrorVariant {
	var se *Error
	if errors.As(err, &se) {
		return se.Variant
	}
	return ""
}
