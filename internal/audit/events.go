package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avauthz/internal/authz"
)

// Outcome is the audited decision outcome.
type Outcome string

// Outcomes.
const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Event is one audited authorization decision.
type Event struct {
	// ID is a unique event identifier.
	ID string `json:"id"`

	// Time is when the decision was made.
	Time time.Time `json:"time"`

	// Subject, Resource, and Action echo the request.
	Subject  string `json:"subject"`
	Resource string `json:"resource"`
	Action   string `json:"action"`

	// Schema is the request's declared policy schema.
	Schema string `json:"schema"`

	// Outcome is allowed or denied.
	Outcome Outcome `json:"outcome"`

	// Reason explains the outcome. Superuser overrides carry their own
	// reason so the bypass is always visible in the trail.
	Reason string `json:"reason"`

	// SnapshotVersion identifies the policy snapshot used.
	SnapshotVersion string `json:"snapshot_version,omitempty"`

	// MatchedRules counts the rules that matched.
	MatchedRules int `json:"matched_rules"`

	// EvaluationErrors counts the rows that failed closed.
	EvaluationErrors int `json:"evaluation_errors,omitempty"`

	// TraceID links the event to a trace, when one is active.
	TraceID string `json:"trace_id,omitempty"`
}

// newEvent builds an event from a request and its decision.
func newEvent(req *authz.Request, d *authz.Decision) *Event {
	outcome := OutcomeDenied
	if d.Allowed {
		outcome = OutcomeAllowed
	}

	return &Event{
		ID:               uuid.NewString(),
		Time:             time.Now().UTC(),
		Subject:          req.Subject,
		Resource:         req.Resource,
		Action:           req.Action,
		Schema:           string(req.SchemaOf()),
		Outcome:          outcome,
		Reason:           string(d.Reason),
		SnapshotVersion:  d.SnapshotVersion,
		MatchedRules:     len(d.MatchedRules),
		EvaluationErrors: len(d.Errors),
	}
}
