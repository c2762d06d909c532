// Package audit writes the decision audit trail: one JSON line per
// authorization decision, including superuser overrides, which are
// never silent. The trail is append-only and separate from the
// operational log.
package audit
