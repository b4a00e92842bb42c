// Package bridge turns committed database notifications into per-channel
// fan-out over WebSocket clients, with heartbeats, token authentication and
// at-least-once delivery for critical events.
package bridge

import (
	"encoding/json"
	"time"
)

// Client frame types.
const (
	FrameAuth        = "auth"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePublish     = "publish"
	FramePing        = "ping"
	FrameAck         = "ack"
)

// Server frame types. Event frames carry no type; they are identified by
// their channel/event fields.
const (
	FrameConnected = "connected"
	FramePong      = "pong"
	FrameError     = "error"
	FrameServerAck = "ack"
)

// Error codes surfaced in error frames.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeAuthExpired     = "AUTH_EXPIRED"
	CodeAuthInvalid     = "AUTH_INVALID"
	CodeBadFrame        = "BAD_FRAME"
)

// ClientFrame is a frame received from a client. Fields are a union across
// frame types; Type selects which ones apply.
type ClientFrame struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel,omitempty"`
	Event   string         `json:"event,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// auth
	Token     string `json:"token,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// ack
	MessageID string `json:"message_id,omitempty"`

	// Monotonic client clock, echoed for debugging only.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// EventFrame is the server frame carrying one fanned-out event. The ID is
// stable across retransmissions so clients can dedupe.
type EventFrame struct {
	ID        string         `json:"id"`
	Channel   string         `json:"channel"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func marshalFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func serverTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func connectedFrame(clientID string) []byte {
	return marshalFrame(map[string]any{
		"type":      FrameConnected,
		"client_id": clientID,
		"timestamp": serverTimestamp(),
	})
}

func pongFrame() []byte {
	return marshalFrame(map[string]any{
		"type":      FramePong,
		"timestamp": serverTimestamp(),
	})
}

func pingFrame() []byte {
	return marshalFrame(map[string]any{
		"type":      FramePing,
		"timestamp": serverTimestamp(),
	})
}

func ackFrame(id string, success bool, errMsg string) []byte {
	frame := map[string]any{
		"type":      FrameServerAck,
		"id":        id,
		"success":   success,
		"timestamp": serverTimestamp(),
	}
	if errMsg != "" {
		frame["error"] = errMsg
	}
	return marshalFrame(frame)
}

func errorFrame(code, message string, details map[string]any) []byte {
	frame := map[string]any{
		"type":      FrameError,
		"code":      code,
		"error":     message,
		"timestamp": serverTimestamp(),
	}
	if details != nil {
		frame["details"] = details
	}
	return marshalFrame(frame)
}
