package middleware

import (
	"context" // Request deadlines
	"time"    // Durations

	"github.com/gin-gonic/gin" // Gin web framework
)

// TimeoutMiddleware attaches a deadline to the request context. Services pass it to
// gorm, so a request that runs past the deadline rolls back instead of hanging.
func TimeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
