// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/browser-bridge/bridge/internal/model"
	"github.com/browser-bridge/bridge/internal/ws"
)

// Error codes returned in ErrorResponse.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeConnectionNotFound = "CONNECTION_NOT_FOUND"
	CodeNoConnections      = "NO_CONNECTIONS"
	CodeRequestTimeout     = "REQUEST_TIMEOUT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeEncode             = "ENCODE_ERROR"
	CodeSendFailed         = "SEND_FAILED"
	CodeConnectionLimit    = "CONNECTION_LIMIT"
	CodeShuttingDown       = "SHUTTING_DOWN"
	CodeJournalDisabled    = "JOURNAL_DISABLED"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendRelayError maps an error from the relay to a status and code.
// ErrConnectionNotFound is checked before ErrNoTarget since an unknown
// explicit id wraps both.
func sendRelayError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrScriptRequired), errors.Is(err, model.ErrSelectorRequired):
		sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, model.ErrConnectionNotFound):
		sendError(c, http.StatusNotFound, CodeConnectionNotFound, err.Error())
	case errors.Is(err, model.ErrNoTarget):
		sendError(c, http.StatusNotFound, CodeNoConnections, err.Error())
	case errors.Is(err, model.ErrReplyTimeout):
		sendError(c, http.StatusRequestTimeout, CodeRequestTimeout, err.Error())
	case errors.Is(err, model.ErrEncode):
		sendError(c, http.StatusInternalServerError, CodeEncode, err.Error())
	case errors.Is(err, model.ErrSendFailed):
		sendError(c, http.StatusBadGateway, CodeSendFailed, err.Error())
	case errors.Is(err, model.ErrConnectionLimit):
		sendError(c, http.StatusServiceUnavailable, CodeConnectionLimit, err.Error())
	case errors.Is(err, ws.ErrRelayClosed):
		sendError(c, http.StatusServiceUnavailable, CodeShuttingDown, err.Error())
	default:
		sendError(c, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}
