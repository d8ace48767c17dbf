package emitter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEncodeEvent(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := Event{
		Kind:       EventError,
		InstanceID: "tee-1",
		Pipeline:   "test-pipeline",
		Timestamp:  ts,
		Stage:      "video_source",
		Message:    "Internal data stream error.",
		Category:   "codec",
		Stats:      map[string]uint64{"frames": 42},
	}

	payload, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent() error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["kind"] != "error" || decoded["stage"] != "video_source" || decoded["category"] != "codec" {
		t.Errorf("unexpected payload: %s", payload)
	}
	if decoded["timestamp"] != "2025-03-01T12:00:00Z" {
		t.Errorf("timestamp = %v", decoded["timestamp"])
	}
	t.Logf("✅ payload: %s", payload)
}

func TestEncodeEvent_OmitsEmpty(t *testing.T) {
	payload, err := EncodeEvent(Event{Kind: EventStarted, InstanceID: "tee-1"})
	if err != nil {
		t.Fatalf("EncodeEvent() error: %v", err)
	}
	for _, field := range []string{`"stage"`, `"message"`, `"category"`, `"format"`, `"stats"`} {
		if strings.Contains(string(payload), field) {
			t.Errorf("payload contains empty field %s: %s", field, payload)
		}
	}
	if !strings.Contains(string(payload), `"timestamp"`) {
		t.Errorf("timestamp not filled: %s", payload)
	}
}

func TestEncodeEvent_RequiresKind(t *testing.T) {
	if _, err := EncodeEvent(Event{InstanceID: "tee-1"}); err == nil {
		t.Error("EncodeEvent() without kind returned nil error")
	}
}

func TestPublish_NotConnected(t *testing.T) {
	e := NewMQTTEmitter(Config{Broker: "localhost:1883", ClientID: "tee-1", Topic: "stream-tee/events/tee-1"})

	if err := e.Publish(Event{Kind: EventStarted}); err == nil {
		t.Fatal("Publish() before Connect returned nil error")
	}
	if got := e.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
	e.Disconnect()
}
