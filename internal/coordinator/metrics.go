package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the coordinator's Prometheus collectors
type Metrics struct {
	devices         prometheus.Gauge
	resolving       prometheus.Gauge
	events          *prometheus.CounterVec
	resolves        *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	discarded       *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	fetchDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airscout_devices",
			Help: "Number of currently known sensor nodes.",
		}),
		resolving: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airscout_resolves_in_flight",
			Help: "Resolves holding the resolve gate (never more than one).",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airscout_discovery_events_total",
			Help: "Service events consumed from the discovery feed.",
		}, []string{"type"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airscout_resolves_total",
			Help: "Completed resolves by result.",
		}, []string{"result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airscout_fetches_total",
			Help: "Completed sensor data fetches by result.",
		}, []string{"result"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airscout_discarded_completions_total",
			Help: "Completions dropped because their device was lost or replaced.",
		}, []string{"task"}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "airscout_resolve_duration_seconds",
			Help:    "Time spent inside a single resolve.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "airscout_fetch_duration_seconds",
			Help:    "Time spent fetching data.json from a node.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.devices, m.resolving, m.events, m.resolves,
			m.fetches, m.discarded, m.resolveDuration, m.fetchDuration)
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
