package authz

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avauthz/internal/authz/expr"
)

// Effect is the outcome a policy rule asks for.
type Effect string

// Rule effects.
const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// ParseEffect parses a persisted effect value.
func ParseEffect(s string) (Effect, error) {
	switch Effect(s) {
	case EffectAllow, EffectDeny:
		return Effect(s), nil
	default:
		return "", fmt.Errorf("invalid effect %q", s)
	}
}

// Schema identifies which policy shape a rule or request uses.
type Schema string

// Policy schemas.
const (
	// SchemaBasic is the plain RBAC shape (who, object, action, effect).
	SchemaBasic Schema = "p"

	// SchemaExtended adds a compiled predicate over the request's
	// attribute bag.
	SchemaExtended Schema = "p2"
)

// Superuser override literals. A request whose attribute bag carries
// the superuser role or group is allowed unconditionally; the bypass is
// always recorded in the decision reason, never silent.
const (
	SuperuserRole  = "Superuser"
	SuperuserGroup = "Superusers"

	attrRoles  = "roles"
	attrGroups = "groups"
)

// AttributeBag carries extended request context. Values are either a
// string or an ordered sequence of strings.
type AttributeBag map[string]interface{}

// Strings returns the sequence value for a key, accepting both []string
// and []interface{} of strings (the shape JSON decoding produces).
func (b AttributeBag) Strings(key string) ([]string, bool) {
	v, ok := b[key]
	if !ok {
		return nil, false
	}
	switch seq := v.(type) {
	case []string:
		return seq, true
	case []interface{}:
		out := make([]string, 0, len(seq))
		for _, item := range seq {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// contains reports whether the sequence under key includes value.
func (b AttributeBag) contains(key, value string) bool {
	seq, ok := b.Strings(key)
	if !ok {
		return false
	}
	for _, s := range seq {
		if s == value {
			return true
		}
	}
	return false
}

// exprBag converts the bag into expression values: strings pass
// through, sequences normalize to []string, anything else is dropped
// so a reference to it reads as an unresolved variable.
func (b AttributeBag) exprBag() map[string]expr.Value {
	out := make(map[string]expr.Value, len(b))
	for key, v := range b {
		switch v.(type) {
		case string:
			out[key] = v
		case []string, []interface{}:
			if seq, ok := b.Strings(key); ok {
				out[key] = seq
			}
		}
	}
	return out
}

// Request is one authorization question.
type Request struct {
	// Subject is the identity asking.
	Subject string

	// Resource is the object being accessed.
	Resource string

	// Action is the operation being performed.
	Action string

	// Attributes is the optional attribute bag. A nil bag declares the
	// basic schema; a non-nil bag declares the extended schema.
	Attributes AttributeBag
}

// SchemaOf returns the schema the request declares.
func (r *Request) SchemaOf() Schema {
	if r.Attributes != nil {
		return SchemaExtended
	}
	return SchemaBasic
}

// Rule is one compiled policy rule.
type Rule struct {
	// Schema tags the rule's shape.
	Schema Schema

	// Who is the subject, role, or group the rule grants to.
	Who string

	// Object is the resource pattern.
	Object string

	// Action is the action, or "*" for any.
	Action string

	// Predicate is the predicate source (extended rules only).
	Predicate string

	// Effect is allow or deny.
	Effect Effect

	// compiled is the predicate AST, built once at snapshot build time.
	compiled *expr.Expr
}

// Reason explains how a decision was reached.
type Reason string

// Decision reasons.
const (
	// ReasonAllowed means at least one rule allowed and none denied.
	ReasonAllowed Reason = "allowed"

	// ReasonExplicitDeny means a matched deny rule forced the denial.
	ReasonExplicitDeny Reason = "explicit_deny"

	// ReasonNoMatch means no rule matched; the default is deny.
	ReasonNoMatch Reason = "no_match"

	// ReasonSuperuser means the unconditional superuser override fired.
	ReasonSuperuser Reason = "superuser_override"
)

// Decision is the outcome of one authorization question.
type Decision struct {
	// Allowed indicates if the request is allowed.
	Allowed bool

	// Reason explains the decision.
	Reason Reason

	// MatchedRules lists the rules that matched, in policy order.
	MatchedRules []*Rule

	// Errors lists per-row evaluation errors. Affected rows failed
	// closed; the decision itself is unaffected.
	Errors []*EvaluationError

	// SnapshotVersion identifies the snapshot the decision used.
	SnapshotVersion string

	// Cached indicates the decision came from the decision cache.
	Cached bool
}

// Row is one tagged, ordered-field record from the policy store:
// a rule (tag "p" or "p2") or a role edge (tag "g" or "g2").
type Row struct {
	// Tag declares the row's schema.
	Tag string

	// Fields are the row's ordered field values.
	Fields []string
}

// Store is the policy store collaborator. The engine only ever reads;
// row insertion and removal belong to the store adapter, followed by a
// reload.
type Store interface {
	// LoadAll returns every persisted row in order.
	LoadAll(ctx context.Context) ([]Row, error)
}
