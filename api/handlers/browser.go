package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/browser-bridge/bridge/internal/model"
	"github.com/browser-bridge/bridge/internal/repository"
	"github.com/browser-bridge/bridge/internal/ws"
)

const (
	defaultHistoryLimit = 50
	defaultJournalLimit = 50
	maxSyncTimeout      = 5 * time.Minute
)

// BrowserHandler handles the browser control API.
type BrowserHandler struct {
	relay   *ws.Relay
	journal *repository.JournalRepository
	logger  zerolog.Logger
}

// NewBrowserHandler creates a new BrowserHandler. journal may be nil when
// the connection journal is disabled.
func NewBrowserHandler(relay *ws.Relay, journal *repository.JournalRepository, logger zerolog.Logger) *BrowserHandler {
	return &BrowserHandler{
		relay:   relay,
		journal: journal,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// ExecuteScriptRequest is the body of the execute endpoints.
type ExecuteScriptRequest struct {
	Script       string  `json:"script"`
	TabID        *string `json:"tabId"`
	ConnectionID string  `json:"connectionId"`
}

// InspectRequest is the body of the inspect endpoints.
type InspectRequest struct {
	Selector     string  `json:"selector"`
	TabID        *string `json:"tabId"`
	ConnectionID string  `json:"connectionId"`
}

// ScreenshotRequest is the body of the screenshot endpoints.
type ScreenshotRequest struct {
	Selector     string  `json:"selector"`
	FullPage     bool    `json:"fullPage"`
	TabID        *string `json:"tabId"`
	ConnectionID string  `json:"connectionId"`
}

// ConnectionResponse is the detail view of one connection.
type ConnectionResponse struct {
	ws.Summary
	LastMessage *model.Envelope `json:"lastMessage"`
}

// CommandAccepted is returned when a fire-and-forget command was sent.
type CommandAccepted struct {
	Message    string `json:"message"`
	RequestID  string `json:"requestId"`
	Recipients int    `json:"recipients"`
}

// SyncResponse carries the reply to a correlated command.
type SyncResponse struct {
	Success      bool            `json:"success"`
	ConnectionID string          `json:"connectionId"`
	ElapsedMs    int64           `json:"elapsedMs"`
	Message      *model.Envelope `json:"message"`
	Data         json.RawMessage `json:"data"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Connections int       `json:"connections"`
}

// bindOptionalJSON binds the body when present. An empty body leaves req
// at its zero value.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// ListConnections handles GET /api/browser/connections.
func (h *BrowserHandler) ListConnections(c *gin.Context) {
	conns := h.relay.Registry().All()
	summaries := make([]ws.Summary, 0, len(conns))
	for _, conn := range conns {
		summaries = append(summaries, conn.Summary())
	}
	c.JSON(http.StatusOK, summaries)
}

// GetConnection handles GET /api/browser/connections/:id.
func (h *BrowserHandler) GetConnection(c *gin.Context) {
	conn, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ConnectionResponse{
		Summary:     conn.Summary(),
		LastMessage: conn.LastMessage(),
	})
}

// GetHistory handles GET /api/browser/connections/:id/history?limit=50.
func (h *BrowserHandler) GetHistory(c *gin.Context) {
	limit, ok := queryPositiveInt(c, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	conn, ok := h.lookup(c)
	if !ok {
		return
	}

	history := conn.History(limit)
	if history == nil {
		history = []*model.Envelope{}
	}
	c.JSON(http.StatusOK, history)
}

func (h *BrowserHandler) lookup(c *gin.Context) (*ws.Connection, bool) {
	id := c.Param("id")
	conn, ok := h.relay.Registry().Get(id)
	if !ok {
		sendError(c, http.StatusNotFound, CodeConnectionNotFound, "Connection "+id+" not found")
		return nil, false
	}
	return conn, true
}

// Execute handles POST /api/browser/execute.
func (h *BrowserHandler) Execute(c *gin.Context) {
	var req ExecuteScriptRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cmd, err := model.NewExecuteScript(req.Script, req.TabID)
	if err != nil {
		sendRelayError(c, err)
		return
	}
	h.dispatch(c, req.ConnectionID, cmd, "Script execution request sent")
}

// Inspect handles POST /api/browser/inspect.
func (h *BrowserHandler) Inspect(c *gin.Context) {
	var req InspectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cmd, err := model.NewInspectElement(req.Selector, req.TabID)
	if err != nil {
		sendRelayError(c, err)
		return
	}
	h.dispatch(c, req.ConnectionID, cmd, "Inspection request sent")
}

// Screenshot handles POST /api/browser/screenshot.
func (h *BrowserHandler) Screenshot(c *gin.Context) {
	var req ScreenshotRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cmd, err := model.NewTakeScreenshot(req.Selector, req.FullPage, req.TabID)
	if err != nil {
		sendRelayError(c, err)
		return
	}
	h.dispatch(c, req.ConnectionID, cmd, "Screenshot request sent")
}

// dispatch sends cmd to one connection, or to all of them when
// connectionID is empty.
func (h *BrowserHandler) dispatch(c *gin.Context, connectionID string, cmd *model.Envelope, message string) {
	ctx := c.Request.Context()
	recipients := 1

	if connectionID != "" {
		if err := h.relay.SendTo(ctx, connectionID, cmd); err != nil {
			sendRelayError(c, err)
			return
		}
	} else {
		recipients = h.relay.Broadcast(ctx, cmd)
		if recipients == 0 {
			sendRelayError(c, model.ErrNoTarget)
			return
		}
	}

	requestID := uuid.NewString()
	h.logger.Debug().
		Str("type", cmd.Type).
		Str("request_id", requestID).
		Str("connection_id", connectionID).
		Int("recipients", recipients).
		Msg("command dispatched")

	c.JSON(http.StatusAccepted, CommandAccepted{
		Message:    message,
		RequestID:  requestID,
		Recipients: recipients,
	})
}

// ExecuteSync handles POST /api/browser/execute-sync?timeout=10000.
func (h *BrowserHandler) ExecuteSync(c *gin.Context) {
	var req ExecuteScriptRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cmd, err := model.NewExecuteScript(req.Script, req.TabID)
	if err != nil {
		sendRelayError(c, err)
		return
	}
	h.request(c, req.ConnectionID, cmd)
}

// InspectSync handles POST /api/browser/inspect-sync?timeout=10000.
func (h *BrowserHandler) InspectSync(c *gin.Context) {
	var req InspectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cmd, err := model.NewInspectElement(req.Selector, req.TabID)
	if err != nil {
		sendRelayError(c, err)
		return
	}
	h.request(c, req.ConnectionID, cmd)
}

// ScreenshotSync handles POST /api/browser/screenshot-sync?timeout=10000.
func (h *BrowserHandler) ScreenshotSync(c *gin.Context) {
	var req ScreenshotRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cmd, err := model.NewTakeScreenshot(req.Selector, req.FullPage, req.TabID)
	if err != nil {
		sendRelayError(c, err)
		return
	}
	h.request(c, req.ConnectionID, cmd)
}

func (h *BrowserHandler) request(c *gin.Context, connectionID string, cmd *model.Envelope) {
	// Zero leaves the relay's configured reply timeout in effect.
	timeoutMs, ok := queryPositiveInt(c, "timeout", 0)
	if !ok {
		return
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout > maxSyncTimeout {
		sendError(c, http.StatusBadRequest, CodeValidation, "timeout must not exceed "+maxSyncTimeout.String())
		return
	}

	replyType, _ := model.ReplyTypeFor(cmd.Type)
	reply, err := h.relay.Request(c.Request.Context(), ws.Call{
		ConnectionID: connectionID,
		Command:      cmd,
		ReplyType:    replyType,
		Timeout:      timeout,
	})
	if err != nil {
		sendRelayError(c, err)
		return
	}

	c.JSON(http.StatusOK, SyncResponse{
		Success:      true,
		ConnectionID: reply.ConnectionID,
		ElapsedMs:    reply.Elapsed.Milliseconds(),
		Message:      reply.Envelope,
		Data:         reply.Envelope.Data(),
	})
}

// Health handles GET /api/browser/health.
func (h *BrowserHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Connections: h.relay.Registry().Count(),
	})
}

// Journal handles GET /api/browser/journal?limit=50&connectionId=.
func (h *BrowserHandler) Journal(c *gin.Context) {
	if h.journal == nil {
		sendError(c, http.StatusNotFound, CodeJournalDisabled, "Connection journal is disabled")
		return
	}
	limit, ok := queryPositiveInt(c, "limit", defaultJournalLimit)
	if !ok {
		return
	}

	entries, err := h.journal.Recent(c.Request.Context(), c.Query("connectionId"), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read journal")
		sendError(c, http.StatusInternalServerError, CodeInternal, "Failed to read journal")
		return
	}
	c.JSON(http.StatusOK, entries)
}

func queryPositiveInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		sendError(c, http.StatusBadRequest, CodeValidation, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

// RegisterRoutes registers the browser API on a router group mounted at
// /api/browser. commandMW wraps the routes that send commands.
func (h *BrowserHandler) RegisterRoutes(rg *gin.RouterGroup, commandMW ...gin.HandlerFunc) {
	rg.GET("/connections", h.ListConnections)
	rg.GET("/connections/:id", h.GetConnection)
	rg.GET("/connections/:id/history", h.GetHistory)
	rg.GET("/health", h.Health)
	rg.GET("/journal", h.Journal)

	commands := rg.Group("", commandMW...)
	commands.POST("/execute", h.Execute)
	commands.POST("/inspect", h.Inspect)
	commands.POST("/screenshot", h.Screenshot)
	commands.POST("/execute-sync", h.ExecuteSync)
	commands.POST("/inspect-sync", h.InspectSync)
	commands.POST("/screenshot-sync", h.ScreenshotSync)
}
