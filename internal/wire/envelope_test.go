package wire

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope(EventChat, "u1", "alice", ChatPayload{
		ID:      "m1",
		Kind:    ChatText,
		Content: "hello",
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.Timestamp.Location() != time.UTC {
		t.Error("timestamps must be UTC")
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != EventChat || decoded.SenderID != "u1" {
		t.Errorf("unexpected envelope: %+v", decoded)
	}

	p, err := decoded.DecodeChat()
	if err != nil {
		t.Fatalf("DecodeChat failed: %v", err)
	}
	if p.ID != "m1" || p.Content != "hello" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestEnvelope_PayloadStaysRawUntilDecoded(t *testing.T) {
	// An envelope with an unknown type still parses; only payload decoding
	// is type-specific.
	frame := []byte(`{"type":"reaction","timestamp":"2026-01-01T00:00:00Z","payload":{"emoji":"x"}}`)

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unknown types must still parse at the envelope level: %v", err)
	}
	if env.Type != "reaction" {
		t.Errorf("unexpected type: %s", env.Type)
	}
}

func TestEnvelope_DecodeStatusWithStartedAt(t *testing.T) {
	started := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	env, err := NewEnvelope(EventStatusChange, "", "system", StatusPayload{
		Status:    StatusActive,
		StartedAt: &started,
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}

	p, err := env.DecodeStatus()
	if err != nil {
		t.Fatalf("DecodeStatus failed: %v", err)
	}
	if p.Status != StatusActive || p.StartedAt == nil || !p.StartedAt.Equal(started) {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestEnvelope_DecodeMismatchedPayload(t *testing.T) {
	env := Envelope{Type: EventJoin, Payload: json.RawMessage(`"not an object"`)}
	if _, err := env.DecodeJoin(); err == nil {
		t.Error("decoding a non-object payload should fail")
	}
}
