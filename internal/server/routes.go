package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/internal/logging"
	"github.com/infrahq/custody/metrics"
)

// maxPayloadSize limits the body of a pushed event. Objects are small, the
// largest field is the QR code of an identification.
const maxPayloadSize = 1 << 20

type pushHandler interface {
	Handle(ctx context.Context, body []byte) (*api.Object, error)
}

// GenerateRoutes returns the router of the receiver.
//
// The order of routes in this function is important! Gin saves a route along
// with all the middleware that will apply to the route when the
// Router.{GET,POST,etc} method is called.
func (s *Server) GenerateRoutes() *gin.Engine {
	router := gin.New()
	router.NoRoute(notFoundHandler)

	router.Use(gin.Recovery())
	router.GET("/healthz", healthHandler)

	router.Use(
		logging.Middleware(),
		timeoutMiddleware(1*time.Minute),
		limitBodyMiddleware(maxPayloadSize),
		metrics.Middleware(s.metricsRegistry),
	)

	router.POST("/notification", pushed("notification", s.notifications))
	router.POST("/callback", pushed("callback", s.callbacks))

	return router
}

// pushed returns a handler that passes the request body to h. The response
// tells the API whether the event was accepted, the object is not echoed.
func pushed(event string, h pushHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			sendError(c, event, fmt.Errorf("%w: payload is larger than %d bytes", errBadRequest, tooLarge.Limit))
			return
		case err != nil:
			sendError(c, event, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}

		obj, err := h.Handle(c.Request.Context(), body)
		if err != nil {
			sendError(c, event, err)
			return
		}

		logging.Debugf("received %s for %s %s (status %d)", event, obj.Kind, obj.UUID, obj.StatusCode)
		metrics.ObservePushedEvent(event, "ok")
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func healthHandler(c *gin.Context) {
	c.Status(http.StatusOK)
}

func notFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"errors": []string{"not found"}})
}
