package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/service"
	ws "github.com/stemsi/exstem-runner/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams countdown ticks and lifecycle events of a session.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Pushes timer ticks, expiries, auto-advances and finalization. Clients may
// send {"action":"view"} to receive a fresh projection.
func (h *WSHandler) SessionStream(c *gin.Context) {
	id := c.Param("session_id")
	sess, err := h.sessions.Get(id)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	events, unsubscribe, err := h.sessions.Subscribe(id)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", id).Logger()
	wsLog.Info().Msg("Client connected")

	ws.Prepare(conn)
	if err := ws.WriteJSON(conn, ws.EventSnapshot, sess.View()); err != nil {
		return
	}

	// All writes happen in the loop below.
	requests := make(chan ws.Action, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestPayload
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			select {
			case requests <- msg.Action:
			default:
			}
		}
	}()

	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			err = h.forward(conn, sess, ev)
		case action := <-requests:
			switch action {
			case ws.ActionPing:
				err = ws.WriteJSON(conn, ws.EventPong, nil)
			case ws.ActionView:
				err = ws.WriteJSON(conn, ws.EventSnapshot, sess.View())
			default:
				wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
				err = ws.WriteError(conn, "unknown action: "+string(action))
			}
		case <-ping.C:
			err = ws.WritePing(conn)
		}
		if err != nil {
			wsLog.Debug().Err(err).Msg("Write failed")
			return
		}
	}
}

// forward writes a hub event and, for state changes, the refreshed view.
func (h *WSHandler) forward(conn *websocket.Conn, sess *service.Session, ev service.Event) error {
	if err := ws.WriteJSON(conn, ws.Event(ev.Type), ev.Data); err != nil {
		return err
	}
	if ev.Type == service.EventTick || ev.Type == service.EventError {
		return nil
	}
	return ws.WriteJSON(conn, ws.EventSnapshot, sess.View())
}
