// Package observability provides structured logging for the policy
// decision engine. Metrics are exposed per package via Prometheus
// collectors; tracing uses the OpenTelemetry API directly at the
// call sites that create spans.
package observability
