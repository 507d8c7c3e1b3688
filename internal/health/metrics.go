package health

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the counters and gauges a group server exports on /metrics.
// Grounded on cmd/qumo-relay/main.go's promhttp.Handler() wiring; the
// metric names are new (this server's own domain), the wiring pattern is
// not.
type Metrics struct {
	RequestsServed   prometheus.Counter
	RequestsForwarded prometheus.Counter
	RequestsDropped  *prometheus.CounterVec
	FreeWorkers      prometheus.Gauge
	SearchDuration   prometheus.Histogram
}

// NewMetrics registers every metric against reg and returns the handle.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathmesh_requests_served_total",
			Help: "Path requests resolved to a final reply by this server.",
		}),
		RequestsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathmesh_requests_forwarded_total",
			Help: "Path requests forwarded to another group server.",
		}),
		RequestsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pathmesh_requests_dropped_total",
			Help: "Path requests dropped, by reason.",
		}, []string{"reason"}),
		FreeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pathmesh_free_workers",
			Help: "Workers currently idle and available for dispatch.",
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathmesh_search_duration_seconds",
			Help:    "Time spent serving one request after its region is resolved: the FindWayLocal/FindWay search plus the resulting reply or forwards.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.RequestsServed, m.RequestsForwarded, m.RequestsDropped, m.FreeWorkers, m.SearchDuration)
	return m
}
