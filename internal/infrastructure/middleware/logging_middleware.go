package middleware

import (
	"time"

	rlog "huddle/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequestLoggingMiddleware logs one line per HTTP request with whatever
// trace and user ids the request context carries by the time it completes.
func RequestLoggingMiddleware(cl *rlog.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		cl.LogRequest(c.Request.Context(), c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
