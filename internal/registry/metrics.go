package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks ledger activity.
type Metrics struct {
	created   prometheus.Counter
	rejected  *prometheus.CounterVec
	rollbacks prometheus.Counter
	tokens    prometheus.Gauge
}

// NewMetrics registers the ledger collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		created: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfactory",
			Subsystem: "ledger",
			Name:      "tokens_created_total",
			Help:      "Tokens committed to the ledger.",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctfactory",
			Subsystem: "ledger",
			Name:      "requests_rejected_total",
			Help:      "Creation requests rejected by validation.",
		}, []string{"reason"}),
		rollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfactory",
			Subsystem: "ledger",
			Name:      "rollbacks_total",
			Help:      "Pending creations that were rolled back.",
		}),
		tokens: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ctfactory",
			Subsystem: "ledger",
			Name:      "tokens",
			Help:      "Tokens currently in the ledger.",
		}),
	}
}

func (m *Metrics) observeCreated(total int) {
	if m == nil {
		return
	}
	m.created.Inc()
	m.tokens.Set(float64(total))
}

func (m *Metrics) observeRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

func (m *Metrics) observeLoaded(total int) {
	if m == nil {
		return
	}
	m.tokens.Set(float64(total))
}
