// Package metrics exposes Prometheus metrics for negotiation and graph
// reloads. Negotiation failures are absorbed rather than returned, so these
// counters are the only place they surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "capibara"

// Negotiation outcomes, used as the "outcome" label.
const (
	OutcomeResolved           = "resolved"
	OutcomeAbsent             = "absent"
	OutcomeUnknownFingerprint = "unknown_fingerprint"
	OutcomeDecodeError        = "decode_error"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	negotiations      *prometheus.CounterVec // by outcome
	decodeErrors      *prometheus.CounterVec // by code
	ignored           prometheus.Counter
	resolveDuration   prometheus.Histogram
	reloads           *prometheus.CounterVec // by result: success, failure
	graphCapabilities prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// disables metrics and returns nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "total",
			Help:      "Negotiation events by outcome",
		}, []string{"outcome"}),

		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "decode_errors_total",
			Help:      "Undecodable negotiation artifacts by error code",
		}, []string{"code"}),

		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "ignored_capabilities_total",
			Help:      "Advertised capabilities unknown to the local graph",
		}),

		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "duration_seconds",
			Help:      "Time spent decoding and resolving one negotiation",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),

		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "reloads_total",
			Help:      "Graph rebuilds by result",
		}, []string{"result"}),

		graphCapabilities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "capabilities",
			Help:      "Capabilities declared in the active graph",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.negotiations, m.decodeErrors, m.ignored,
		m.resolveDuration, m.reloads, m.graphCapabilities,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveNegotiation records one negotiation event.
func (m *Metrics) ObserveNegotiation(outcome string, ignored int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(outcome).Inc()
	if ignored > 0 {
		m.ignored.Add(float64(ignored))
	}
	m.resolveDuration.Observe(elapsed.Seconds())
}

// ObserveDecodeError records an absorbed decode error.
func (m *Metrics) ObserveDecodeError(code string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(code).Inc()
}

// ObserveReload records a graph rebuild. size is the capability count of the
// active graph after the attempt.
func (m *Metrics) ObserveReload(ok bool, size int) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
	m.graphCapabilities.Set(float64(size))
}
