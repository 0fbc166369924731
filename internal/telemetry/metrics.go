// Package telemetry exposes Prometheus metrics for the liveness engine.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	// ProbesTotal counts probed hosts per poll round, by outcome.
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostpingbot",
			Name:      "probes_total",
			Help:      "Total number of per-host ICMP probe outcomes.",
		},
		[]string{"result"},
	)

	// HeartbeatsTotal counts inbound heartbeat calls, by outcome.
	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostpingbot",
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeat calls received.",
		},
		[]string{"status"},
	)

	// TransitionsTotal counts actual online/offline state transitions.
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostpingbot",
			Name:      "transitions_total",
			Help:      "Total number of watchdog state transitions.",
		},
		[]string{"direction"},
	)

	// NotificationsTotal counts queued notification deliveries, by outcome.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostpingbot",
			Name:      "notifications_total",
			Help:      "Total number of owner notifications.",
		},
		[]string{"type", "status"},
	)

	// PollCycleDuration observes how long a full poll cycle takes.
	PollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hostpingbot",
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of poll scheduler cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

func init() {
	Registry.MustRegister(ProbesTotal, HeartbeatsTotal, TransitionsTotal, NotificationsTotal, PollCycleDuration)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
