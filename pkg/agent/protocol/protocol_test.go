package protocol

import (
	"testing"
)

func TestDecodeServerMessage_TurnEvents(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantType string
		wantTurn bool
	}{
		{"user started", `{"type":"UserStartedSpeaking"}`, TypeUserStartedSpeaking, true},
		{"end of thought", `{"type":"EndOfThought"}`, TypeEndOfThought, true},
		{"agent started", `{"type":"AgentStartedSpeaking"}`, TypeAgentStartedSpeaking, true},
		{"agent audio done", `{"type":"AgentAudioDone"}`, TypeAgentAudioDone, true},
		{"unknown type passes through", `{"type":"ConversationText","content":"hi"}`, "ConversationText", false},
		{"no type at all", `{"content":"hi"}`, "", false},
		{"whitespace trimmed", `{"type":" EndOfThought "}`, TypeEndOfThought, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeServerMessage([]byte(tt.frame))
			if err != nil {
				t.Fatalf("DecodeServerMessage() error = %v", err)
			}
			if msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
			if msg.IsTurnEvent() != tt.wantTurn {
				t.Errorf("IsTurnEvent() = %v, want %v", msg.IsTurnEvent(), tt.wantTurn)
			}
		})
	}
}

func TestDecodeServerMessage_KeepsAllFields(t *testing.T) {
	msg, err := DecodeServerMessage([]byte(`{"type":"ConversationText","role":"assistant","content":"hello"}`))
	if err != nil {
		t.Fatalf("DecodeServerMessage() error = %v", err)
	}
	if msg.Fields["role"] != "assistant" {
		t.Errorf("Fields[role] = %v, want assistant", msg.Fields["role"])
	}
	if msg.Fields["content"] != "hello" {
		t.Errorf("Fields[content] = %v, want hello", msg.Fields["content"])
	}
}

func TestDecodeServerMessage_MalformedJSON(t *testing.T) {
	if _, err := DecodeServerMessage([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
	if _, err := DecodeServerMessage([]byte(`not json at all`)); err == nil {
		t.Fatal("expected error for non-json frame")
	}
}

func TestDecodeClientPayload(t *testing.T) {
	fields, err := DecodeClientPayload([]byte(`{"type":"InjectMessage","text":"hi"}`))
	if err != nil {
		t.Fatalf("DecodeClientPayload() error = %v", err)
	}
	if fields["text"] != "hi" {
		t.Errorf("fields[text] = %v, want hi", fields["text"])
	}

	if _, err := DecodeClientPayload([]byte(`{{`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestCanonicalizeSettings(t *testing.T) {
	got, err := CanonicalizeSettings([]byte("  {\n  \"agent\": {\"listen\": true}\n}  "))
	if err != nil {
		t.Fatalf("CanonicalizeSettings() error = %v", err)
	}
	want := `{"agent":{"listen":true}}`
	if string(got) != want {
		t.Errorf("CanonicalizeSettings() = %s, want %s", got, want)
	}
}

func TestCanonicalizeSettings_Malformed(t *testing.T) {
	if _, err := CanonicalizeSettings([]byte(`{broken`)); err == nil {
		t.Fatal("expected error for malformed settings")
	}
}
