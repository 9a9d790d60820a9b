package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/wfcore/engine/internal/logger"
	"github.com/wfcore/engine/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades a request to a WebSocket connection that streams
// execution events for one executionId, or every execution when the param
// is empty or "*".
func HandleWebSocket(hub *observability.WebSocketHub, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		executionID := c.Param("executionId")
		if executionID == "*" {
			executionID = ""
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.ErrorContext(c.Request.Context(), "websocket upgrade failed", "error", err)
			return
		}

		client := observability.NewWebSocketClient(uuid.NewString(), conn, hub, executionID)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
