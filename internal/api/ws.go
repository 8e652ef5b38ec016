package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"readalong/internal/ws"
)

// WebSocket upgrader for the alternative subscribe transport
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Classroom clients come from arbitrary origins.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// subscribeWebSocket serves GET /sessions/{id}/ws: the same relay
// attachment as the SSE endpoint, delivered over a WebSocket for
// clients behind proxies that buffer event streams.
func (s *Server) subscribeWebSocket(w http.ResponseWriter, r *http.Request, sessionID string) {
	// Validate before upgrading so a missing session gets an HTTP 404
	// instead of a doomed socket.
	if _, err := s.registry.Get(sessionID); err != nil {
		s.jsonHeader(w)
		s.sendDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: session=%s err=%v", sessionID, err)
		return
	}

	wsConn := ws.NewConnection(conn)
	defer wsConn.Close()

	sub, err := s.relay.Attach(r.Context(), sessionID, wsConn)
	if err != nil {
		log.Printf("WebSocket attach failed: session=%s err=%v", sessionID, err)
		return
	}
	defer sub.Detach()

	// Subscribers never send application data; the read loop exists
	// only to notice the close handshake or a dropped peer.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Printf("WebSocket subscriber disconnected: session=%s", sessionID)
			return
		}
	}
}
