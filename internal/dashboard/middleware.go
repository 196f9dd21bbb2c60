package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/zulandar/liteflow/internal/metrics"
)

// requestLogger logs one line per request.
func requestLogger(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := l.Info()
		if status >= http.StatusInternalServerError {
			ev = l.Error()
		} else if status >= http.StatusBadRequest {
			ev = l.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// requestMetrics records request counts and latency by route template.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		timer.ObserveDuration(metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route))
	}
}

// isAJAX reports whether the request came from the console's own scripts.
func isAJAX(c *gin.Context) bool {
	return c.GetHeader("X-Requested-With") == "XMLHttpRequest"
}

// requireAJAX rejects state-changing requests that lack the
// X-Requested-With marker.
func requireAJAX(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAJAX(c) {
			l.Warn().Str("path", c.Request.URL.Path).Msg("rejected request without X-Requested-With header")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		c.Next()
	}
}
