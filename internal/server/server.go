package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/infrahq/custody/custody"
	"github.com/infrahq/custody/internal"
	"github.com/infrahq/custody/internal/logging"
	"github.com/infrahq/custody/internal/repeat"
	"github.com/infrahq/custody/metrics"
)

type Options struct {
	Addr ListenerOptions
	// PruneInterval is how often requests in a terminal state are removed
	// from the tracker. Zero disables pruning, as does a nil tracker.
	PruneInterval time.Duration
}

type ListenerOptions struct {
	HTTP    string
	Metrics string
}

type Addrs struct {
	HTTP    net.Addr
	Metrics net.Addr
}

// Server receives the notifications and callbacks that the custodian API
// pushes for requests made with notify set. Received states are written to
// the cache of the connector and applied to tracked requests.
type Server struct {
	options         Options
	tracker         *custody.Tracker
	notifications   *custody.NotificationHandler
	callbacks       *custody.CallbackHandler
	metricsRegistry *prometheus.Registry
	routines        []routine
	Addrs           Addrs
}

// New creates a Server and starts listening on the configured addresses. An
// empty address listens on a random port of 127.0.0.1.
//
// tracker holds the requests of this process that pushed states are applied
// to. It is nil for a receiver that runs on its own, like custody server:
// the requests are made by other processes, which see pushed states only
// through a shared cache. Without a tracker nothing is pruned.
func New(options Options, connector *custody.Connector, tracker *custody.Tracker) (*Server, error) {
	s := &Server{
		options:         options,
		tracker:         tracker,
		notifications:   custody.NewNotificationHandler(connector, tracker),
		callbacks:       custody.NewCallbackHandler(connector.Cache(), tracker),
		metricsRegistry: setupMetrics(tracker),
	}

	if err := s.listen(); err != nil {
		return nil, fmt.Errorf("listening: %w", err)
	}

	return s, nil
}

// Tracker holds the requests that pushed states are applied to. It is nil
// when New was called without one.
func (s *Server) Tracker() *custody.Tracker {
	return s.tracker
}

// Run serves until ctx is cancelled. A cancelled context is not an error.
func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for i := range s.routines {
		group.Go(s.routines[i].run)
	}

	if s.tracker != nil && s.options.PruneInterval > 0 {
		group.Go(func() error {
			return repeat.Every(ctx, s.options.PruneInterval, func(context.Context) {
				if n := s.tracker.Prune(); n > 0 {
					logging.Debugf("stopped tracking %d finished requests", n)
				}
			})
		})
	}

	logging.Infof("starting custody receiver (%s) - http:%s metrics:%s",
		internal.FullVersion(), s.Addrs.HTTP, s.Addrs.Metrics)

	<-ctx.Done()
	for i := range s.routines {
		s.routines[i].stop()
	}

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) listen() error {
	setGinMode()
	router := s.GenerateRoutes()

	httpErrorLog := log.New(logging.NewFilteredHTTPLogger(), "", 0)
	metricsServer := &http.Server{
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Addr:              s.options.Addr.Metrics,
		Handler:           metrics.NewHandler(s.metricsRegistry),
		ErrorLog:          httpErrorLog,
	}

	var err error
	s.Addrs.Metrics, err = s.setupServer(metricsServer)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Addr:              s.options.Addr.HTTP,
		Handler:           router,
		ErrorLog:          httpErrorLog,
	}
	s.Addrs.HTTP, err = s.setupServer(httpServer)
	if err != nil {
		s.stopAll()
		return err
	}
	return nil
}

func (s *Server) setupServer(server *http.Server) (net.Addr, error) {
	if server.Addr == "" {
		server.Addr = "127.0.0.1:"
	}
	l, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, err
	}
	logging.Infof("listening on %s", l.Addr().String())

	s.routines = append(s.routines, routine{
		run: func() error {
			err := server.Serve(l)
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		stop: func() {
			_ = server.Close()
			_ = l.Close()
		},
	})
	return l.Addr(), nil
}

func (s *Server) stopAll() {
	for i := range s.routines {
		s.routines[i].stop()
	}
}

type routine struct {
	run  func() error
	stop func()
}

// setGinMode uses release mode unless GIN_MODE asks for another one, so the
// receiver does not print debug routes on start.
func setGinMode() {
	if mode := os.Getenv(gin.EnvGinMode); mode != "" {
		gin.SetMode(mode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}
