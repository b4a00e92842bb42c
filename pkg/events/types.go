// Package events provides real-time event delivery via PostgreSQL
// NOTIFY/LISTEN. Every state-changing REST handler emits a notification on a
// single well-known channel; the bridge process holds the LISTEN and fans
// events out to WebSocket clients by logical channel.
//
// Logical channels are carried inside the notification payload, not as
// separate PG channels, so the bridge needs exactly one LISTEN regardless of
// how many agents or sessions are active.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotifyChannel is the single PostgreSQL NOTIFY channel shared by the API
// and bridge processes.
const NotifyChannel = "hive_events"

// Logical channel families for bridge fan-out.
const (
	ChannelGlobal  = "global"
	ChannelMetrics = "metrics"
)

// AgentChannel returns the logical channel for one agent's events.
func AgentChannel(agentID string) string {
	return "agents/" + agentID
}

// SessionChannel returns the logical channel for one session's events.
func SessionChannel(sessionID string) string {
	return "sessions/" + sessionID
}

// TopicChannel returns the logical channel for one message topic.
func TopicChannel(topic string) string {
	return "topics/" + topic
}

// Event names emitted by the REST handlers.
const (
	EventActionCreated     = "action.created"
	EventProjectCreated    = "project.created"
	EventProjectDeleted    = "project.deleted"
	EventSessionStarted    = "session.started"
	EventSessionEnded      = "session.ended"
	EventSessionCompacted  = "session.compacted"
	EventRequestCreated    = "request.created"
	EventRequestCompleted  = "request.completed"
	EventTaskCreated       = "task.created"
	EventTaskCompleted     = "task.completed"
	EventTaskFailed        = "task.failed"
	EventSubtaskCreated    = "subtask.created"
	EventSubtaskRunning    = "subtask.running"
	EventSubtaskCompleted  = "subtask.completed"
	EventSubtaskFailed     = "subtask.failed"
	EventAgentConnected    = "agent.connected"
	EventAgentDisconnected = "agent.disconnected"
	EventMessageCreated    = "message.created"
	EventBlockingCreated   = "blocking.created"
	EventBlockingRemoved   = "blocking.removed"
	EventMetricUpdate      = "metric.update"
)

// Envelope is the notification payload carried over NOTIFY. The bridge
// deserializes it and routes on Channel.
type Envelope struct {
	Channel   string         `json:"channel"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// NewEnvelope stamps an envelope with the current time.
func NewEnvelope(channel, event string, data map[string]any) Envelope {
	return Envelope{
		Channel:   channel,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// notifyPayloadLimit stays under PostgreSQL's 8000-byte NOTIFY limit.
const notifyPayloadLimit = 7900

// Marshal serializes the envelope, replacing the data with a truncation
// marker when the payload would exceed PostgreSQL's NOTIFY size limit.
func (e Envelope) Marshal() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event envelope: %w", err)
	}
	if len(raw) <= notifyPayloadLimit {
		return string(raw), nil
	}

	truncated := Envelope{
		Channel:   e.Channel,
		Event:     e.Event,
		Data:      map[string]any{"truncated": true},
		Timestamp: e.Timestamp,
	}
	raw, err = json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated envelope: %w", err)
	}
	return string(raw), nil
}

// ParseEnvelope deserializes a NOTIFY payload. A malformed payload returns an
// error; callers log and skip.
func ParseEnvelope(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("malformed event envelope: %w", err)
	}
	if e.Channel == "" || e.Event == "" {
		return Envelope{}, fmt.Errorf("event envelope missing channel or event")
	}
	return e, nil
}

// IsCritical reports whether an event name is tracked for at-least-once
// delivery (task.*, subtask.*, message.*).
func IsCritical(event string) bool {
	for _, prefix := range []string{"task.", "subtask.", "message."} {
		if len(event) > len(prefix) && event[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
