package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"agent-trader/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard runs on a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// handleEvents bridges the event notifier onto a websocket. An optional
// ?agent=<id> query restricts the stream to one agent. The subscription is
// buffered and non-blocking on the notifier side, so a stalled socket drops
// events rather than stalling sessions.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		http.Error(w, "events not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	agentID := r.URL.Query().Get("agent")
	var eventChan <-chan models.Event
	if agentID != "" {
		eventChan = s.notifier.Subscribe(agentID)
	} else {
		eventChan = s.notifier.SubscribeAll()
	}

	go s.writeEvents(conn, agentID, eventChan)
	go s.readLoop(conn)
}

// writeEvents forwards notifier events to the socket and keeps it alive with
// pings. It exits when the subscription closes or a write fails.
func (s *Server) writeEvents(conn *websocket.Conn, agentID string, eventChan <-chan models.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if agentID != "" {
			s.notifier.Unsubscribe(agentID, eventChan)
		} else {
			s.notifier.UnsubscribeAll(eventChan)
		}
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
