package images

import "github.com/prometheus/client_golang/prometheus"

// Lookup results recorded by Metrics.
const (
	lookupHit    = "hit"
	lookupMiss   = "miss"
	lookupStale  = "stale"
	lookupBypass = "bypass"
	lookupError  = "error"
)

// Fallback reasons recorded by Metrics.
const (
	fallbackEmpty     = "empty"
	fallbackListError = "list_error"
	fallbackSignError = "sign_error"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	lookups       *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	signFailures  prometheus.Counter
	invalidations prometheus.Counter
}

// NewMetrics creates the engine collectors and registers them with reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "catalog",
				Subsystem: "image",
				Name:      "cache_lookups_total",
				Help:      "Image cache lookups by result",
			},
			[]string{"result"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "catalog",
				Subsystem: "image",
				Name:      "fallbacks_total",
				Help:      "Requests served the default image, by reason",
			},
			[]string{"reason"},
		),
		signFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "image",
			Name:      "sign_failures_total",
			Help:      "Object keys dropped because they could not be signed",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "image",
			Name:      "invalidations_total",
			Help:      "Image cache entries invalidated",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.lookups, m.fallbacks, m.signFailures, m.invalidations)
	}
	return m
}

func (m *Metrics) lookup(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *Metrics) fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) signFailure() {
	if m == nil {
		return
	}
	m.signFailures.Inc()
}

func (m *Metrics) invalidation() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}
