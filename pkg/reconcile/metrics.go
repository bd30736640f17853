package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the reconciliation loop.
type Metrics struct {
	passes  *prometheus.CounterVec
	version prometheus.Gauge
	ready   prometheus.Gauge
	unmet   prometheus.Gauge
}

// NewMetrics creates and registers the driver's collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tempocoord",
			Name:      "reconcile_passes_total",
			Help:      "Reconciliation passes by outcome.",
		}, []string{"outcome"}),
		version: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tempocoord",
			Name:      "published_config_version",
			Help:      "Version of the last published runtime config.",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tempocoord",
			Name:      "topology_ready",
			Help:      "Whether the cluster topology meets all role minimums.",
		}),
		unmet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tempocoord",
			Name:      "unmet_preconditions",
			Help:      "Number of currently unmet preconditions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.passes, m.version, m.ready, m.unmet)
	}
	return m
}

func (m *Metrics) observe(outcome string, version int64, ready bool, unmet int) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(outcome).Inc()
	m.version.Set(float64(version))
	if ready {
		m.ready.Set(1)
	} else {
		m.ready.Set(0)
	}
	m.unmet.Set(float64(unmet))
}
