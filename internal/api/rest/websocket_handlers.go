package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/storyforge/storyforge/internal/logging"
	"github.com/storyforge/storyforge/internal/orchestrator"
)

// upgrader allows all origins; this mirrors the teacher's development
// default. A production deployment would check Origin against an
// allowlist here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandlers upgrades HTTP connections into live event streams
// scoped to a single generation request, grounded on the teacher's
// WebSocketHandler (observer/websocket_handler.go).
type WebSocketHandlers struct {
	hub    *orchestrator.WebSocketHub
	logger *logging.Logger
}

func NewWebSocketHandlers(hub *orchestrator.WebSocketHub, logger *logging.Logger) *WebSocketHandlers {
	return &WebSocketHandlers{hub: hub, logger: logger}
}

// HandleStream upgrades GET /api/v1/generations/:request_id/stream into a
// WebSocket that receives every Event published for that request ID.
func (h *WebSocketHandlers) HandleStream(c *gin.Context) {
	requestID := c.Param("request_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket connection", "error", err, "request_id", requestID)
		return
	}

	clientID := uuid.New().String()
	client := orchestrator.NewWebSocketClient(clientID, conn, h.hub, requestID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("websocket stream established", "client_id", clientID, "request_id", requestID, "remote_addr", c.Request.RemoteAddr, "at", time.Now())
}
