package metrics

import (
	"github.com/gin-gonic/gin"
)

// RequestMiddleware counts every request and every 4xx/5xx response.
func RequestMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.IncRequests()
		c.Next()
		if c.Writer.Status() >= 400 {
			m.IncErrors()
		}
	}
}
