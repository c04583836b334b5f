package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Live channel metrics
	LiveConnected  prometheus.Gauge
	LiveReconnects prometheus.Counter
	FramesReceived *prometheus.CounterVec
	ReplaySize     prometheus.Histogram

	// Store metrics
	MergesApplied *prometheus.CounterVec
	ListSize      prometheus.Gauge

	// Command metrics
	CommandsSent   *prometheus.CounterVec
	CommandsFailed *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics. A nil registerer
// falls back to the default prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LiveConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connected",
			Help:      "Whether the live channel is currently connected (0 or 1)",
		}),
		LiveReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_reconnects_total",
			Help:      "Total number of live channel reconnect attempts",
		}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_frames_received_total",
			Help:      "Total number of frames received on the live channel",
		}, []string{"kind"}),
		ReplaySize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_batch_size",
			Help:      "Number of records delivered per history replay",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		MergesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_applied_total",
			Help:      "Total number of merge operations applied to the store",
		}, []string{"kind"}),
		ListSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_in_store",
			Help:      "Current number of notifications held by the store",
		}),
		CommandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Total number of user commands mirrored to the server",
		}, []string{"op", "path"}),
		CommandsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_failed_total",
			Help:      "Total number of user commands that failed to mirror",
		}, []string{"op"}),
	}
}
