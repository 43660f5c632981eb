package core

import (
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Variant: ErrNoKey,
		Message: "no API key configured",
	}

	expected := "no_key: no API key configured"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithDetail(t *testing.T) {
	err := &Error{
		Variant: ErrSocketClosed,
		Message: "socket closed before ready",
		Detail:  "401 Unauthorized",
	}

	expected := "socket_closed: socket closed before ready (401 Unauthorized)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want ErrorVariant
	}{
		{"no key", NewNoKeyError(), ErrNoKey},
		{"no url", NewNoURLError(), ErrNoURL},
		{"no config", NewNoConfigError(), ErrNoConfig},
		{"failed setup", NewFailedSetupError("bad address"), ErrFailedSetup},
		{"user media", NewUserMediaError("device busy"), ErrUserMedia},
		{"socket closed", NewSocketClosedError("refused"), ErrSocketClosed},
		{"connection timeout", NewConnectionTimeoutError("10s elapsed"), ErrConnectionTimeout},
		{"empty audio", NewEmptyAudioError(), ErrEmptyAudio},
		{"unknown message", NewUnknownMessageError("not json"), ErrUnknownMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Variant != tt.want {
				t.Errorf("Variant = %v, want %v", tt.err.Variant, tt.want)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}

func TestError_IsFatal(t *testing.T) {
	tests := []struct {
		variant ErrorVariant
		want    bool
	}{
		{ErrFailedSetup, true},
		{ErrUserMedia, true},
		{ErrSocketClosed, true},
		{ErrConnectionTimeout, true},
		{ErrNoKey, false},
		{ErrNoURL, false},
		{ErrNoConfig, false},
		{ErrEmptyAudio, false},
		{ErrUnknownMessage, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.variant), func(t *testing.T) {
			err := &Error{Variant: tt.variant, Message: "test"}
			if got := err.IsFatal(); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVariantOf(t *testing.T) {
	if got := VariantOf(NewEmptyAudioError()); got != ErrEmptyAudio {
		t.Errorf("VariantOf(empty audio) = %q, want %q", got, ErrEmptyAudio)
	}

	wrapped := fmt.Errorf("while reading: %w", NewUnknownMessageError("garbage"))
	if got := VariantOf(wrapped); got != ErrUnknownMessage {
		t.Errorf("VariantOf(wrapped) = %q, want %q", got, ErrUnknownMessage)
	}

	if got := VariantOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("VariantOf(plain) = %q, want empty", got)
	}
}
