package watchdog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// bindFailures counts bind or accept errors that forced a new name
	bindFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keepalive_bind_failures_total",
			Help: "Total bind or accept failures on the rendezvous socket",
		},
	)

	// accepts counts daemon connections
	accepts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keepalive_accepts_total",
			Help: "Total daemon connections accepted",
		},
	)

	disconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keepalive_disconnects_total",
			Help: "Total daemon connections lost",
		},
	)

	launchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepalive_launch_attempts_total",
			Help: "Total daemon launch attempts by outcome",
		},
		[]string{"outcome"},
	)

	livenessToken = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keepalive_liveness_token",
			Help: "Liveness token of the current supervision cycle",
		},
	)

	connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keepalive_connected",
			Help: "1 while a daemon connection is held",
		},
	)
)

// MetricsObserver records watchdog events as Prometheus metrics.
type MetricsObserver struct{}

func (MetricsObserver) Observe(e Event) {
	switch e.Kind {
	case EventListening:
		livenessToken.Set(float64(e.Token))
	case EventBindFailed:
		bindFailures.Inc()
	case EventAccepted:
		accepts.Inc()
		connected.Set(1)
	case EventDisconnected:
		disconnects.Inc()
		connected.Set(0)
	case EventTokenAdvanced:
		livenessToken.Set(float64(e.Token))
	case EventLaunchOK:
		launchAttempts.WithLabelValues("ok").Inc()
	case EventLaunchFailed:
		launchAttempts.WithLabelValues("failed").Inc()
	}
}
