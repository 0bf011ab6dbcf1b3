package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// webSocket upgrades the connection and registers it with the broadcast
// bus until the client disconnects. Incoming client frames are read and
// discarded, matching the source's "client-to-server frames are
// ignored" contract; the read loop's only job is to notice the close.
func (h *handlers) webSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.WithField("component", "httpapi").Warnf("websocket upgrade failed: %v", err)
		}
		return
	}
	if h.bus == nil {
		conn.Close()
		return
	}

	h.bus.Register(conn)
	defer h.bus.Unregister(conn)
	defer conn.Close()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
