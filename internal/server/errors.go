package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/internal/logging"
	"github.com/infrahq/custody/metrics"
)

var errBadRequest = errors.New("bad request")

// sendError translates err into the appropriate HTTP status code, and sends
// it in the same errors envelope the custodian API uses.
func sendError(c *gin.Context, event string, err error) {
	code := http.StatusInternalServerError
	message := "internal server error" // don't leak any info by default
	result := "error"

	var decodeErr *api.DecodeError
	var apiErr api.Error

	log := logging.L.Debug()

	switch {
	case errors.As(err, &decodeErr), errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
		message = err.Error()
		result = "invalid"

	case errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound:
		// the notification names an object the API does not know about
		code = http.StatusNotFound
		message = "object not found"
		result = "unknown"

	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
		message = "timed out"
		log = logging.L.Warn()

	default:
		// includes failed fetches and cache writes, which the API may retry
		log = logging.L.Error()
	}

	metrics.ObservePushedEvent(event, result)

	log.CallerSkipFrame(1).
		Err(err).
		Str("event", event).
		Int("statusCode", code).
		Msg("push handler error")

	_ = c.Error(err)
	c.JSON(code, gin.H{"errors": []string{message}})
	c.Abort()
}
