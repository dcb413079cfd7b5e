package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// timeoutMiddleware bounds the time a handler may spend, including the fetch
// made for a notification.
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// limitBodyMiddleware makes reads of a request body larger than max fail
// with *http.MaxBytesError.
func limitBodyMiddleware(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}
