// SPDX-License-Identifier: MIT

// Package audit provides structured audit logging for operator actions.
// It follows the WHO/WHAT/WHEN pattern: every mutating command leaves a
// durable record of who requested it, what changed and how it ended.
package audit

import (
	"os"
	"time"

	"github.com/ManuGH/bgctl/internal/log"
	"github.com/rs/zerolog"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Switch events
	EventSwitchStart        EventType = "switch.start"
	EventSwitchSuccess      EventType = "switch.success"
	EventSwitchNoop         EventType = "switch.noop"
	EventSwitchStaleRouting EventType = "switch.stale_routing"
	EventSwitchError        EventType = "switch.error"

	// Chaos events
	EventChaosInduce EventType = "chaos.induce"
	EventChaosHeal   EventType = "chaos.heal"

	// Lifecycle events
	EventLifecycleUp   EventType = "lifecycle.up"
	EventLifecycleDown EventType = "lifecycle.down"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	Type        EventType         `json:"type"`
	Actor       string            `json:"actor"`    // WHO: OS user or API caller
	Action      string            `json:"action"`   // WHAT: human-readable action description
	Resource    string            `json:"resource"` // resource affected (pool, deployment)
	Result      string            `json:"result"`   // success, failure, noop, warning
	OperationID string            `json:"operation_id"`
	Details     map[string]string `json:"details,omitempty"`
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	auditLogger := log.WithComponent("audit").With().
		Str("log_type", "audit").
		Logger()
	return &Logger{logger: auditLogger}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Actor == "" {
		event.Actor = Actor()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.OperationID != "" {
		logEvent = logEvent.Str("operation_id", event.OperationID)
	}
	for key, value := range event.Details {
		logEvent = logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// Switch logs a pool switch event.
func (l *Logger) Switch(eventType EventType, operationID, from, to, result string) {
	l.Log(Event{
		Type:        eventType,
		Action:      "switched active pool",
		Resource:    "active_pool",
		Result:      result,
		OperationID: operationID,
		Details: map[string]string{
			"from": from,
			"to":   to,
		},
	})
}

// Chaos logs a chaos induce/heal event.
func (l *Logger) Chaos(eventType EventType, operationID, targetPool, result string) {
	l.Log(Event{
		Type:        eventType,
		Action:      "toggled chaos mode",
		Resource:    targetPool,
		Result:      result,
		OperationID: operationID,
	})
}

// Lifecycle logs a deployment up/down event.
func (l *Logger) Lifecycle(eventType EventType, result string) {
	l.Log(Event{
		Type:     eventType,
		Action:   "changed deployment lifecycle",
		Resource: "deployment",
		Result:   result,
	})
}

// Actor resolves the OS user invoking the command.
func Actor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "system"
}
