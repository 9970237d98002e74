package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"reception-agent-go/internal/logger"
)

const ctxLogger = "logger"

// RequestLogger tags each request with an id and logs a one-line summary
// when it completes.
func RequestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := logger.RequestID(c.Request)
		c.Writer.Header().Set(logger.HeaderRequestID, rid)

		entry := l.WithRequest(c.Request, rid)
		c.Set(ctxLogger, entry)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		entry = entry.WithFields(logrus.Fields{
			"path":        path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("request")
			return
		}
		entry.Info("request")
	}
}

// requestLog returns the request-scoped entry set by RequestLogger.
func requestLog(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(ctxLogger); ok {
		if e, ok := v.(*logrus.Entry); ok && e != nil {
			return e
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
