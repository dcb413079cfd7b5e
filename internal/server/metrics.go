package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/infrahq/custody/custody"
	"github.com/infrahq/custody/internal"
	"github.com/infrahq/custody/metrics"
)

func setupMetrics(tracker *custody.Tracker) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant '1' value labeled by branch, version, commit, and date from which custody was built",
		ConstLabels: prometheus.Labels{
			"branch":  internal.Branch,
			"version": internal.FullVersion(),
			"commit":  internal.Commit,
			"date":    internal.Date,
		},
	}, func() float64 { return 1 }))

	if tracker != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "custody",
			Name:      "tracked_requests",
			Help:      "Requests waiting for a pushed state.",
		}, func() float64 { return float64(tracker.Len()) }))
	}

	return registry
}
