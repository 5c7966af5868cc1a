package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ws "github.com/mailmirror/mailmirror/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint for live change
// notifications. Clients receive every committed reconciliation change in
// commit order.
type WebSocketHandler struct {
	hub    *ws.Hub
	userID string
	log    *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub, userID string, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, userID: userID, log: log}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The daemon binds to the loopback interface and serves one local
		// user; cross-origin browsers are not part of the picture.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with
// the Hub.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := h.hub.Register(h.userID, conn)
	if client == nil {
		h.log.Warn("websocket connection rejected, max connections exceeded",
			zap.String("user_id", h.userID))
		return
	}

	go h.readLoop(client)
}

// readLoop reads messages from the WebSocket until the connection is closed,
// then unregisters the client.
func (h *WebSocketHandler) readLoop(client *ws.Client) {
	conn := client.Conn()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(h.userID, client)
}
