package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// LoggerMiddleware writes one access log line per request through the
// request-scoped logger. Health probes log at debug level.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Status(c.Writer.Status()),
			logger.Elapsed(start),
			logger.String("client_ip", c.ClientIP()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, logger.String("query", q))
		}

		reqLog := logger.FromContext(c.Request.Context(), log)
		switch {
		case len(c.Errors) > 0:
			reqLog.Error("Request failed", append(fields, logger.Strings("errors", c.Errors.Errors()))...)
		case strings.HasPrefix(path, "/health"):
			reqLog.Debug("Request", fields...)
		default:
			reqLog.Info("Request", fields...)
		}
	}
}

// RecoveryMiddleware answers 500 when a handler panics.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		log.Error("Handler panicked",
			logger.Any("panic", recovered),
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// RequestIDMiddleware propagates X-Request-ID, generating one when absent,
// and attaches a logger carrying the id to the request context.
func RequestIDMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		scoped := log.With(logger.String("request_id", id))
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), scoped))
		c.Next()
	}
}
