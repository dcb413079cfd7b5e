package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "http",
	Name:      "request_duration_seconds",
	Help:      "A histogram of duration, in seconds, handling HTTP requests.",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
}, []string{"host", "method", "path", "status"})

var apiResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "custody",
	Name:      "api_responses_total",
	Help:      "Responses received from the custodian API.",
}, []string{"method", "kind", "status"})

var requestOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "custody",
	Name:      "request_outcomes_total",
	Help:      "Asset requests that reached a terminal state.",
}, []string{"kind", "state"})

var pushedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "custody",
	Name:      "pushed_events_total",
	Help:      "Notifications and callbacks received, by result.",
}, []string{"event", "result"})

// Register adds the custody metrics, and the standard process and go
// metrics, to promRegistry.
func Register(promRegistry prometheus.Registerer) {
	promRegistry.MustRegister(apiResponses, requestOutcomes, pushedEvents)
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRegistry.MustRegister(collectors.NewGoCollector())
}

// ObserveAPIResponse counts a response from the custodian API.
func ObserveAPIResponse(method, kind string, status int) {
	apiResponses.With(prometheus.Labels{
		"method": method,
		"kind":   kind,
		"status": strconv.Itoa(status),
	}).Inc()
}

// ObserveOutcome counts an asset request reaching a terminal state.
func ObserveOutcome(kind, state string) {
	requestOutcomes.With(prometheus.Labels{"kind": kind, "state": state}).Inc()
}

// ObservePushedEvent counts a notification or callback handled by the
// receiver. result is "ok" or an error class.
func ObservePushedEvent(event, result string) {
	pushedEvents.With(prometheus.Labels{"event": event, "result": result}).Inc()
}

// Middleware registers the request_duration_seconds metric with promRegistry
// and returns a middleware that emits it on every request.
func Middleware(promRegistry prometheus.Registerer) gin.HandlerFunc {
	promRegistry.MustRegister(requestDuration)

	return func(c *gin.Context) {
		t := time.Now()

		c.Next()

		requestDuration.With(prometheus.Labels{
			"host":   c.Request.Host,
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": strconv.Itoa(c.Writer.Status()),
		}).Observe(time.Since(t).Seconds())
	}
}

// NewHandler creates a new gin.Engine, and adds a 'GET /metrics' handler to it.
// The handler serves prometheus metrics from the promRegistry.
func NewHandler(promRegistry *prometheus.Registry) *gin.Engine {
	engine := gin.New()
	engine.GET("/metrics", func(c *gin.Context) {
		handler := promhttp.InstrumentMetricHandler(
			promRegistry,
			promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		handler.ServeHTTP(c.Writer, c.Request)
	})
	return engine
}
