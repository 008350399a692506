package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

// Timer measures one outbound collaborator call
type Timer struct {
	start   time.Time
	metrics *Metrics
	target  string
	op      string
}

// NewTimer starts timing a call to an external collaborator
func NewTimer(metrics *Metrics, target, op string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		target:  target,
		op:      op,
	}
}

// Stop records the call with its final status
func (t *Timer) Stop(status string) {
	if t.metrics == nil {
		return
	}
	duration := time.Since(t.start)
	t.metrics.OutboundCalls.WithLabelValues(t.target, t.op, status).Inc()
	t.metrics.OutboundDuration.WithLabelValues(t.target, t.op).Observe(duration.Seconds())
}
