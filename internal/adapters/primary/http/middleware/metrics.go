package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"fraud-classifier-service/internal/metrics"
)

// Metrics records request latency by route template, so path parameters do
// not blow up label cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		_ = metrics.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
