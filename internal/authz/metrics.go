package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains decision engine metrics.
type Metrics struct {
	registerer prometheus.Registerer

	// decideTotal counts Decide calls.
	decideTotal *prometheus.CounterVec

	// decideDuration measures Decide duration.
	decideDuration *prometheus.HistogramVec

	// decisionTotal counts decision outcomes by reason.
	decisionTotal *prometheus.CounterVec

	// cacheHits counts decision cache hits.
	cacheHits prometheus.Counter

	// cacheMisses counts decision cache misses.
	cacheMisses prometheus.Counter

	// evaluationErrors counts per-row evaluation faults.
	evaluationErrors prometheus.Counter

	// ruleCount tracks the number of compiled rules per schema.
	ruleCount *prometheus.GaugeVec

	// reloadTotal counts snapshot reloads.
	reloadTotal *prometheus.CounterVec

	// skippedRows tracks the number of rows skipped by the last build.
	skippedRows prometheus.Gauge
}

// NewMetrics creates new decision engine metrics registered with
// prometheus.DefaultRegisterer so they show up on the default /metrics
// endpoint.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer, for processes that expose a dedicated registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avauthz"
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer: registerer,
	}

	m.decideTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decide_total",
			Help:      "Total number of authorization decisions requested",
		},
		[]string{"schema", "result"},
	)

	m.decideDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decide_duration_seconds",
			Help:      "Decision duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"schema"},
	)

	m.decisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decision_total",
			Help:      "Total number of decision outcomes by reason",
		},
		[]string{"decision", "reason"},
	)

	m.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cache_hits_total",
			Help:      "Total number of decision cache hits",
		},
	)

	m.cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cache_misses_total",
			Help:      "Total number of decision cache misses",
		},
	)

	m.evaluationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluation_errors_total",
			Help:      "Total number of policy rows that failed closed during evaluation",
		},
	)

	m.ruleCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rule_count",
			Help:      "Number of compiled policy rules in the active snapshot",
		},
		[]string{"schema"},
	)

	m.reloadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reload_total",
			Help:      "Total number of snapshot reloads",
		},
		[]string{"result"},
	)

	m.skippedRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "skipped_rows",
			Help:      "Number of rows skipped while building the active snapshot",
		},
	)

	// Register all metrics with the provided registerer, ignoring duplicates.
	collectors := []prometheus.Collector{
		m.decideTotal,
		m.decideDuration,
		m.decisionTotal,
		m.cacheHits,
		m.cacheMisses,
		m.evaluationErrors,
		m.ruleCount,
		m.reloadTotal,
		m.skippedRows,
	}
	for _, c := range collectors {
		_ = registerer.Register(c)
	}

	return m
}

// Init pre-initializes common label combinations with zero values so
// that metrics appear in /metrics output immediately after startup.
// Prometheus *Vec types only emit metric lines after WithLabelValues()
// is called at least once. Idempotent.
func (m *Metrics) Init() {
	if m == nil {
		return
	}
	for _, schema := range []string{string(SchemaBasic), string(SchemaExtended)} {
		for _, result := range []string{"allowed", "denied", "error"} {
			m.decideTotal.WithLabelValues(schema, result)
		}
		m.decideDuration.WithLabelValues(schema)
		m.ruleCount.WithLabelValues(schema)
	}
	for _, reason := range []Reason{ReasonAllowed, ReasonExplicitDeny, ReasonNoMatch, ReasonSuperuser} {
		decision := "denied"
		if reason == ReasonAllowed || reason == ReasonSuperuser {
			decision = "allowed"
		}
		m.decisionTotal.WithLabelValues(decision, string(reason))
	}
	for _, result := range []string{"success", "failure"} {
		m.reloadTotal.WithLabelValues(result)
	}
}

// RecordDecide records one Decide call.
func (m *Metrics) RecordDecide(schema Schema, result string, duration time.Duration) {
	if m == nil || m.decideTotal == nil {
		return
	}
	m.decideTotal.WithLabelValues(string(schema), result).Inc()
	m.decideDuration.WithLabelValues(string(schema)).Observe(duration.Seconds())
}

// RecordDecision records a decision outcome.
func (m *Metrics) RecordDecision(d *Decision) {
	if m == nil || m.decisionTotal == nil {
		return
	}
	decision := "denied"
	if d.Allowed {
		decision = "allowed"
	}
	m.decisionTotal.WithLabelValues(decision, string(d.Reason)).Inc()
}

// RecordCacheHit records a decision cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records a decision cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordEvaluationErrors records rows that failed closed.
func (m *Metrics) RecordEvaluationErrors(n int) {
	if m == nil || m.evaluationErrors == nil || n <= 0 {
		return
	}
	m.evaluationErrors.Add(float64(n))
}

// RecordReload records a snapshot reload attempt.
func (m *Metrics) RecordReload(result string) {
	if m == nil || m.reloadTotal == nil {
		return
	}
	m.reloadTotal.WithLabelValues(result).Inc()
}

// ObserveSnapshot updates the active-snapshot gauges from a build report.
func (m *Metrics) ObserveSnapshot(report *BuildReport) {
	if m == nil || m.ruleCount == nil || report == nil {
		return
	}
	m.ruleCount.WithLabelValues(string(SchemaBasic)).Set(float64(report.BasicRules))
	m.ruleCount.WithLabelValues(string(SchemaExtended)).Set(float64(report.ExtendedRules))
	m.skippedRows.Set(float64(len(report.Skipped)))
}
