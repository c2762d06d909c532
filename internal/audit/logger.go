package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthz/internal/authz"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// Logger is the decision audit logger. It satisfies the engine's
// recorder contract and never blocks the decision path on write errors.
type Logger interface {
	// Record writes one decision to the audit trail.
	Record(ctx context.Context, req *authz.Request, d *authz.Decision)

	// Close closes the logger.
	Close() error
}

// Metrics contains audit metrics.
type Metrics struct {
	eventsTotal *prometheus.CounterVec
}

// NewMetrics creates audit metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates audit metrics registered with the
// provided registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avauthz"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Total number of audited decisions",
			},
			[]string{"outcome", "reason"},
		),
	}

	// Duplicate registration is safe, the descriptors are identical.
	_ = registerer.Register(m.eventsTotal)

	return m
}

// record counts one audited decision.
func (m *Metrics) record(event *Event) {
	if m == nil || m.eventsTotal == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(event.Outcome), event.Reason).Inc()
}

// logger implements the Logger interface over an io.Writer.
type logger struct {
	mu      sync.Mutex
	writer  io.Writer
	closer  io.Closer
	logger  observability.Logger
	metrics *Metrics
}

// LoggerOption is a functional option for the audit logger.
type LoggerOption func(*logger)

// WithLogger sets the operational logger used for write failures.
func WithLogger(opLogger observability.Logger) LoggerOption {
	return func(l *logger) {
		l.logger = opLogger
	}
}

// WithMetrics sets the audit metrics.
func WithMetrics(metrics *Metrics) LoggerOption {
	return func(l *logger) {
		l.metrics = metrics
	}
}

// NewLogger creates an audit logger writing JSON lines to the given
// output: "stdout", "stderr", or a file path (opened append-only).
func NewLogger(output string, opts ...LoggerOption) (Logger, error) {
	l := &logger{
		logger: observability.NopLogger(),
	}

	switch output {
	case "", "stdout":
		l.writer = os.Stdout
	case "stderr":
		l.writer = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		l.writer = f
		l.closer = f
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Record writes one decision to the audit trail.
func (l *logger) Record(ctx context.Context, req *authz.Request, d *authz.Decision) {
	event := newEvent(req, d)

	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		event.TraceID = span.TraceID().String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("failed to marshal audit event", observability.Error(err))
		return
	}

	l.mu.Lock()
	_, err = l.writer.Write(append(data, '\n'))
	l.mu.Unlock()
	if err != nil {
		l.logger.Error("failed to write audit event", observability.Error(err))
		return
	}

	l.metrics.record(event)
}

// Close closes the underlying file, if any.
func (l *logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// noopLogger discards all events.
type noopLogger struct{}

// NewNoopLogger creates an audit logger that discards everything.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

// Record does nothing.
func (*noopLogger) Record(context.Context, *authz.Request, *authz.Decision) {}

// Close does nothing.
func (*noopLogger) Close() error {
	return nil
}

// Ensure implementations satisfy the interfaces.
var (
	_ Logger                 = (*logger)(nil)
	_ Logger                 = (*noopLogger)(nil)
	_ authz.DecisionRecorder = (*logger)(nil)
	_ authz.DecisionRecorder = (*noopLogger)(nil)
)
