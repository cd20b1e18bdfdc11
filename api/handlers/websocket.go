package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/browser-bridge/bridge/internal/model"
	"github.com/browser-bridge/bridge/internal/ws"
)

// WebSocketHandler accepts browser connections.
type WebSocketHandler struct {
	relay  *ws.Relay
	logger zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(relay *ws.Relay, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		relay:  relay,
		logger: logger.With().Str("component", "ws_handler").Logger(),
	}
}

// Connect handles GET /ws?connectionId= - upgrades to a WebSocket and
// registers the connection. A missing id is generated.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	id := c.Query("connectionId")
	if id == "" {
		id = uuid.NewString()
	}

	if err := h.relay.Admit(id); err != nil {
		if errors.Is(err, model.ErrConnectionLimit) {
			sendError(c, http.StatusServiceUnavailable, CodeConnectionLimit, "Maximum number of browser connections reached")
			return
		}
		sendRelayError(c, err)
		return
	}

	// On failure the upgrader or Serve has already answered the client.
	if _, err := h.relay.HandleConnection(c.Writer, c.Request, id); err != nil {
		h.logger.Debug().Err(err).Str("connection_id", id).Msg("websocket handshake failed")
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Connect)
}
