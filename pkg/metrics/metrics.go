package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation metrics
	ResyncCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_agent_resync_cycles_total",
			Help: "Total number of full resynchronization passes",
		},
	)

	ResyncFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_agent_resync_failures_total",
			Help: "Total number of resync passes that set the needs-resync flag",
		},
	)

	ResyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_agent_resync_duration_seconds",
			Help:    "Duration of full resynchronization passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	MonitorsEnforced = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_agent_monitors_enforced",
			Help: "Number of monitors currently enforced by the driver",
		},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_agent_notifications_total",
			Help: "Total number of inbound notifications by kind",
		},
		[]string{"kind"},
	)

	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_agent_notifications_dropped_total",
			Help: "Total number of notifications dropped for unknown kind",
		},
	)

	// Heartbeat metrics
	HeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_agent_heartbeats_total",
			Help: "Total number of successful state reports",
		},
	)

	HeartbeatFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_agent_heartbeat_failures_total",
			Help: "Total number of failed state reports",
		},
	)

	// Driver metrics
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_agent_probes_total",
			Help: "Total number of reachability probes by outcome",
		},
		[]string{"outcome"},
	)

	StatusPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_agent_status_pushes_total",
			Help: "Total number of port status pushes by direction",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(ResyncCyclesTotal)
	prometheus.MustRegister(ResyncFailuresTotal)
	prometheus.MustRegister(ResyncDuration)
	prometheus.MustRegister(MonitorsEnforced)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(NotificationsDropped)
	prometheus.MustRegister(HeartbeatsTotal)
	prometheus.MustRegister(HeartbeatFailuresTotal)
	prometheus.MustRegister(ProbesTotal)
	prometheus.MustRegister(StatusPushesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
