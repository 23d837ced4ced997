// Package websocket holds the wire format and helpers of the session stream.
package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
	ActionView Action = "view"
)

// RequestPayload is a client frame.
type RequestPayload struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot  Event = "snapshot"
	EventTick      Event = "tick"
	EventExpired   Event = "expired"
	EventAdvanced  Event = "advanced"
	EventFinalized Event = "finalized"
	EventCanceled  Event = "canceled"
	EventPong      Event = "pong"
	EventError     Event = "error"
)

// ResponsePayload is a server frame.
type ResponsePayload struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
	Time  int64 `json:"ts"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Message string `json:"message"`
}
