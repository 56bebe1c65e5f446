package dashboard

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cuemby/storjmonitor/pkg/broadcast"
	"github.com/cuemby/storjmonitor/pkg/log"
	"github.com/cuemby/storjmonitor/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Dashboard clients are served same-origin by this process; no
	// separate web frontend origin is in scope.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler returns the HTTP handler that upgrades connections to the
// dashboard websocket endpoint.
func Handler(hub *broadcast.Hub, hist *store.Writer, nodeNames []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := NewClient(conn, hub, hist, nodeNames)
		client.Serve()
	}
}
