// Package server exposes the decision engine over HTTP: a decide
// endpoint for policy enforcement points, an explicit reload endpoint,
// health, and Prometheus metrics. The server is a thin shell; all
// decision semantics live in the engine.
package server
