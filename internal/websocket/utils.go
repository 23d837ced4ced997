package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WriteWait is the deadline for a single frame write.
	WriteWait = 10 * time.Second
	// PongWait is how long a silent client is kept.
	PongWait = 60 * time.Second
	// PingPeriod must be shorter than PongWait.
	PingPeriod = (PongWait * 9) / 10
	// MaxMessageSize caps inbound frames; clients only send control actions.
	MaxMessageSize = 512
)

// Prepare applies the read limit and pong handler to a fresh connection.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})
}

// WriteJSON sends one server frame.
func WriteJSON(conn *websocket.Conn, event Event, data any) error {
	conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteJSON(ResponsePayload{Event: event, Data: data, Time: time.Now().UnixMilli()})
}

// WriteError sends an error frame.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteJSON(conn, EventError, ErrorData{Message: errMsg})
}

// WritePing sends a keepalive ping.
func WritePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait))
}

// ReadJSON reads one client frame. Any frame extends the read deadline.
func ReadJSON(conn *websocket.Conn, v *RequestPayload) error {
	if err := conn.ReadJSON(v); err != nil {
		return err
	}
	return conn.SetReadDeadline(time.Now().Add(PongWait))
}
