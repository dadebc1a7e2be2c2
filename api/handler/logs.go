package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webexporter/logger"
)

// Logs returns a handler for GET /api/v1/logs, a server-sent event stream
// of progress lines. Retained history is replayed first.
func Logs(hub *logger.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, cancel := hub.Subscribe(64)
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		for _, l := range hub.History() {
			c.SSEvent("log", l)
		}
		c.Writer.Flush()

		ctx := c.Request.Context()
		c.Stream(func(w io.Writer) bool {
			select {
			case l, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent("log", l)
				return true
			case <-ctx.Done():
				return false
			}
		})
	}
}
