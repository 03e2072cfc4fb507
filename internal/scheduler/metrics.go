package scheduler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scheduler's Prometheus collectors.
// Each Metrics owns its registry so several schedulers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	ClaimsWon   prometheus.Counter
	ClaimsLost  prometheus.Counter
	Dispatches  *prometheus.CounterVec
	ItemsSwept  prometheus.Counter
	ReadyDepth  prometheus.Gauge
	HandlingNow prometheus.Gauge
}

// NewMetrics creates and registers the scheduler collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		ClaimsWon: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "muster_claims_won_total",
			Help: "Claims that landed for this worker",
		}),
		ClaimsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "muster_claims_lost_total",
			Help: "Claims lost to another worker or to a stale revision",
		}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muster_dispatches_total",
			Help: "Dispatch attempts by outcome",
		}, []string{"outcome"}),
		ItemsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "muster_items_swept_total",
			Help: "Abandoned claims reset by the liveness sweep",
		}),
		ReadyDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "muster_queue_ready",
			Help: "Pending items in the ready index",
		}),
		HandlingNow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "muster_queue_handling",
			Help: "Items currently claimed",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.ClaimsWon, m.ClaimsLost, m.Dispatches, m.ItemsSwept, m.ReadyDepth, m.HandlingNow)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
