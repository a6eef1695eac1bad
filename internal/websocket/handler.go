package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/brunovales/painelzap/internal/auth"
)

// HandleWebSocket upgrades the connection and runs it as a hub client bound
// to the authenticated account. Mounted behind RequireAuth, so the auth
// context is always populated.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // agents connect from desktop apps, not a fixed origin
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, auth.UserID(r.Context()))
		client.Run(r.Context())
	}
}
