// Package middleware provides the cross-cutting gin middleware of the server.
package middleware

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"grimoire/internal/platform/logging"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-Id"
	// ContextRequestID is the gin context key of the request id.
	ContextRequestID = "requestID"
)

// RequestID propagates an incoming request id or generates one when absent.
// A child logger carrying "request_id" is stored in the request context;
// logging.FromContext returns it downstream.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set(ContextRequestID, id)

		logger := slog.Default().With("request_id", id)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}
