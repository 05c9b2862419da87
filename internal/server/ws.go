package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"messager/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// clients connect from arbitrary origins; the feed carries no
	// per-connection authority
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSocket upgrades the request and hands the connection to the hub.
// The live feed is unauthenticated at the transport level: the connection is
// not tied to a user and receives every broadcast event.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	s.hub.Register(broadcast.NewConn(sock, s.hub, r.RemoteAddr))
}
