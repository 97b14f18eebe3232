package rest

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/storyforge/storyforge/internal/logging"
)

const (
	requestIDHeader     = "X-Request-ID"
	contextKeyRequestID = "request_id"
)

// GetRequestID returns the per-request correlation id stamped by
// RequestLogger, generating one is the logger's job, not the caller's.
func GetRequestID(c *gin.Context) string {
	v, exists := c.Get(contextKeyRequestID)
	if !exists {
		return ""
	}
	return v.(string)
}

// RequestLogger stamps a request id (reusing an inbound X-Request-ID if
// present) and logs start/completion, grounded on the teacher's
// middleware_logging.go.
func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(contextKeyRequestID, requestID)
		c.Header(requestIDHeader, requestID)

		logger.InfoContext(c.Request.Context(), "request started",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		args := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
		}
		switch {
		case status >= 500:
			logger.ErrorContext(c.Request.Context(), "request completed", args...)
		case status >= 400:
			logger.WarnContext(c.Request.Context(), "request completed", args...)
		default:
			logger.InfoContext(c.Request.Context(), "request completed", args...)
		}
	}
}

// Recovery converts a panic in a handler into a 500 APIError response
// instead of crashing the process, grounded on the teacher's
// middleware_recovery.go.
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID := GetRequestID(c)
				logger.ErrorContext(c.Request.Context(), "panic recovered",
					"request_id", requestID,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"error", r,
					"stack", string(debug.Stack()),
				)
				apiErr := NewAPIError("INTERNAL_ERROR", fmt.Sprintf("internal server error (request_id: %s)", requestID), http.StatusInternalServerError)
				c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr)
			}
		}()
		c.Next()
	}
}
