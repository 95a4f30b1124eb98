package metrics

import "github.com/prometheus/client_golang/prometheus"

// SimMetrics exposes counters/histograms for the simulation turn engine.
type SimMetrics struct {
	turnsTotal       *prometheus.CounterVec
	reasoningLatency *prometheus.HistogramVec
	replyParseTotal  *prometheus.CounterVec
	triggersDropped  *prometheus.CounterVec
	schemaViolations prometheus.Counter
}

func NewSimMetrics(reg prometheus.Registerer) *SimMetrics {
	m := &SimMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ersim",
			Subsystem: "sim",
			Name:      "turns_total",
			Help:      "Total simulation turns by outcome",
		}, []string{"outcome"}),
		reasoningLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ersim",
			Subsystem: "sim",
			Name:      "reasoning_latency_seconds",
			Help:      "Latency of the reasoning provider call",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"provider"}),
		replyParseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ersim",
			Subsystem: "sim",
			Name:      "reply_parse_total",
			Help:      "Provider replies by recovery path",
		}, []string{"kind"}),
		triggersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ersim",
			Subsystem: "sim",
			Name:      "triggers_dropped_total",
			Help:      "Action triggers removed during normalization",
		}, []string{"reason"}),
		schemaViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ersim",
			Subsystem: "sim",
			Name:      "schema_violations_total",
			Help:      "Provider replies that did not match the reply schema",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.reasoningLatency, m.replyParseTotal, m.triggersDropped, m.schemaViolations)
	return m
}

func (m *SimMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *SimMetrics) ObserveReasoningLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.reasoningLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *SimMetrics) ObserveReplyParse(kind string) {
	if m == nil {
		return
	}
	m.replyParseTotal.WithLabelValues(kind).Inc()
}

func (m *SimMetrics) ObserveTriggerDropped(reason string) {
	if m == nil {
		return
	}
	m.triggersDropped.WithLabelValues(reason).Inc()
}

func (m *SimMetrics) ObserveSchemaViolation() {
	if m == nil {
		return
	}
	m.schemaViolations.Inc()
}

// ResourceMetrics tracks resource unlock requests.
type ResourceMetrics struct {
	unlocksTotal *prometheus.CounterVec
}

func NewResourceMetrics(reg prometheus.Registerer) *ResourceMetrics {
	m := &ResourceMetrics{
		unlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ersim",
			Subsystem: "resources",
			Name:      "unlocks_total",
			Help:      "Resource unlock requests by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.unlocksTotal)
	return m
}

func (m *ResourceMetrics) ObserveUnlock(outcome string) {
	if m == nil {
		return
	}
	m.unlocksTotal.WithLabelValues(outcome).Inc()
}
