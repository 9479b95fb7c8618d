package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ManuGH/bgctl/internal/log"
)

func TestSwitchEventFields(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "debug", Output: &buf})

	NewLogger().Switch(EventSwitchSuccess, "op-1", "blue", "green", "success")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal audit line: %v", err)
	}

	checks := map[string]string{
		"event_type":   "switch.success",
		"resource":     "active_pool",
		"result":       "success",
		"from":         "blue",
		"to":           "green",
		"operation_id": "op-1",
		"log_type":     "audit",
	}
	for key, want := range checks {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
	if entry["actor"] == "" {
		t.Error("actor must never be empty")
	}
}

func TestDefaultTimestampAndActor(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "debug", Output: &buf})

	NewLogger().Log(Event{Type: EventLifecycleUp, Result: "success"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal audit line: %v", err)
	}
	if entry["timestamp"] == nil {
		t.Error("timestamp not defaulted")
	}
	if entry["actor"] == nil || entry["actor"] == "" {
		t.Error("actor not defaulted")
	}
}
