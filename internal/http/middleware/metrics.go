package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/getnvoi/aven-sub001/internal/observability"
)

// Metrics records request counts and latency labelled by route pattern.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
