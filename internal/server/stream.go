package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// upgrader gates the handshake on the same origin list as the REST
// surface; CORS preflight does not cover websocket upgrades.
func (h *SessionsHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1 << 15,
		WriteBufferSize: 1 << 12,
		CheckOrigin:     h.originAllowed,
	}
}

// originAllowed admits non-browser clients (no Origin header) and any
// origin on the configured allow list.
func (h *SessionsHandler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.Origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 1 << 20
)

// stream upgrades to a websocket carrying both directions of a session:
// binary frames from the client are audio chunks fed into the capture
// pipeline, JSON text frames to the client are state snapshots.
func (h *SessionsHandler) stream(c echo.Context) error {
	s, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	up := h.upgrader()
	conn, err := up.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	snapshots, cancel := s.Orch.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go h.readAudio(conn, s, done)

	// push the current state immediately so the client renders without
	// waiting for the next transition
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(s.Orch.Snapshot()); err != nil {
		conn.Close()
		return nil
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer conn.Close()
	for {
		select {
		case <-done:
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				return nil
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// readAudio pumps inbound frames until the peer goes away. Only binary
// frames carry payload; anything else is drained for control handling.
func (h *SessionsHandler) readAudio(conn *websocket.Conn, s *liveSession, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Printf("session %s: stream read error: %v", s.ID, err)
			}
			return
		}
		if kind == websocket.BinaryMessage && len(data) > 0 {
			s.Ingest.Push(data)
		}
	}
}
