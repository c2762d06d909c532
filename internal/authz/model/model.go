package model

import (
	"fmt"
	"strings"
)

// DefaultText is the built-in model definition. It mirrors the
// persisted contract: a basic RBAC schema and an extended schema with
// a per-row predicate and the superuser bypass.
const DefaultText = `
[request_definition]
r = sub, obj, act
r2 = sub, obj, act, expr

[policy_definition]
p = sub, obj, act, eft
p2 = sub, obj, act, expr, eft

[role_definition]
g = _, _
g2 = _, _

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))
e2 = some(where (p2.eft == allow)) && !some(where (p2.eft == deny))

[matchers]
m = (r.sub == p.sub || g(r.sub, p.sub) || g2(r.sub, p.sub)) \
    && patternMatch(r.obj, p.obj) && (r.act == p.act || p.act == "*")
m2 = (eval(p2.expr) && (r2.sub == p2.sub || g(r2.sub, p2.sub) || g2(r2.sub, p2.sub)) \
    && patternMatch(r2.obj, p2.obj) && (r2.act == p2.act || p2.act == "*")) \
    || "Superuser" in r2.expr.roles || "Superusers" in r2.expr.groups
`

// Section names of the model definition.
const (
	sectionRequest = "request_definition"
	sectionPolicy  = "policy_definition"
	sectionRole    = "role_definition"
	sectionEffect  = "policy_effect"
	sectionMatcher = "matchers"
)

// ConfigError reports a malformed model definition. It is fatal at
// snapshot build time: the engine refuses to install a snapshot built
// from an invalid model.
type ConfigError struct {
	Section string
	Key     string
	Msg     string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	switch {
	case e.Section != "" && e.Key != "":
		return fmt.Sprintf("invalid model: [%s] %s: %s", e.Section, e.Key, e.Msg)
	case e.Section != "":
		return fmt.Sprintf("invalid model: [%s]: %s", e.Section, e.Msg)
	default:
		return fmt.Sprintf("invalid model: %s", e.Msg)
	}
}

// EffectPolicy identifies a recognized effect combination formula.
type EffectPolicy int

const (
	// EffectUnset means the schema declares no effect formula.
	EffectUnset EffectPolicy = iota

	// EffectAllowAndNotDeny is allow-overrides with explicit-deny-wins:
	// allow iff some matched row allows and no matched row denies.
	EffectAllowAndNotDeny
)

// Schema describes the ordered fields of a request or policy shape.
type Schema struct {
	// Key is the schema key ("r", "r2", "p", "p2").
	Key string

	// Fields are the declared field names in order.
	Fields []string
}

// Declared reports whether the schema is present in the model.
func (s Schema) Declared() bool {
	return s.Key != ""
}

// Model is a parsed and validated model definition.
type Model struct {
	// RequestBasic is the basic request shape (sub, obj, act).
	RequestBasic Schema

	// RequestExt is the extended request shape; its last field names
	// the attribute bag.
	RequestExt Schema

	// PolicyBasic is the basic policy shape; its last field is eft.
	PolicyBasic Schema

	// PolicyExt is the extended policy shape; its second-to-last field
	// names the predicate expression and its last field is eft.
	PolicyExt Schema

	// RoleDomains lists the declared role relation keys, each an
	// independent graph domain ("g", "g2").
	RoleDomains []string

	// EffectBasic and EffectExt are the recognized effect formulas.
	EffectBasic EffectPolicy
	EffectExt   EffectPolicy

	// MatcherBasic and MatcherExt are the matcher formula sources,
	// compiled at snapshot build time.
	MatcherBasic string
	MatcherExt   string
}

// Default parses the built-in model definition.
func Default() *Model {
	m, err := Parse(DefaultText)
	if err != nil {
		panic(err)
	}
	return m
}

// HasDomain reports whether the model declares the given role domain.
func (m *Model) HasDomain(domain string) bool {
	for _, d := range m.RoleDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// Parse parses a model definition text. Unknown sections, unknown
// keys, wrong tuple arity, unrecognized effect formulas, and
// incomplete schemas are all ConfigErrors.
func Parse(text string) (*Model, error) {
	m := &Model{}

	section := ""
	for _, line := range logicalLines(text) {
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, &ConfigError{Msg: fmt.Sprintf("malformed section header %q", line)}
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			if !knownSection(section) {
				return nil, &ConfigError{Section: section, Msg: "unknown section"}
			}
			continue
		}

		if section == "" {
			return nil, &ConfigError{Msg: fmt.Sprintf("assignment %q outside any section", line)}
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &ConfigError{Section: section, Msg: fmt.Sprintf("malformed assignment %q", line)}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if err := m.apply(section, key, value); err != nil {
			return nil, err
		}
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// logicalLines splits the text into non-empty lines, strips comments,
// and joins lines continued with a trailing backslash.
func logicalLines(text string) []string {
	var lines []string
	var pending string

	for _, raw := range strings.Split(text, "\n") {
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, "\\") {
			pending += strings.TrimSpace(line[:len(line)-1]) + " "
			continue
		}

		lines = append(lines, strings.TrimSpace(pending+line))
		pending = ""
	}

	if pending != "" {
		lines = append(lines, strings.TrimSpace(pending))
	}
	return lines
}

// knownSection reports whether name is a valid section.
func knownSection(name string) bool {
	switch name {
	case sectionRequest, sectionPolicy, sectionRole, sectionEffect, sectionMatcher:
		return true
	}
	return false
}

// apply stores one key = value assignment.
func (m *Model) apply(section, key, value string) error {
	switch section {
	case sectionRequest:
		fields := splitFields(value)
		switch key {
		case "r":
			if len(fields) != 3 {
				return arityError(section, key, 3, len(fields))
			}
			m.RequestBasic = Schema{Key: key, Fields: fields}
		case "r2":
			if len(fields) != 4 {
				return arityError(section, key, 4, len(fields))
			}
			m.RequestExt = Schema{Key: key, Fields: fields}
		default:
			return unknownKeyError(section, key)
		}

	case sectionPolicy:
		fields := splitFields(value)
		switch key {
		case "p":
			if len(fields) != 4 {
				return arityError(section, key, 4, len(fields))
			}
			if fields[len(fields)-1] != "eft" {
				return &ConfigError{Section: section, Key: key, Msg: "last field must be eft"}
			}
			m.PolicyBasic = Schema{Key: key, Fields: fields}
		case "p2":
			if len(fields) != 5 {
				return arityError(section, key, 5, len(fields))
			}
			if fields[len(fields)-1] != "eft" {
				return &ConfigError{Section: section, Key: key, Msg: "last field must be eft"}
			}
			m.PolicyExt = Schema{Key: key, Fields: fields}
		default:
			return unknownKeyError(section, key)
		}

	case sectionRole:
		if key != "g" && key != "g2" {
			return unknownKeyError(section, key)
		}
		fields := splitFields(value)
		if len(fields) != 2 {
			return arityError(section, key, 2, len(fields))
		}
		if m.HasDomain(key) {
			return &ConfigError{Section: section, Key: key, Msg: "duplicate role relation"}
		}
		m.RoleDomains = append(m.RoleDomains, key)

	case sectionEffect:
		switch key {
		case "e":
			policy, ok := recognizeEffect(value, "p")
			if !ok {
				return &ConfigError{Section: section, Key: key, Msg: "unrecognized effect formula"}
			}
			m.EffectBasic = policy
		case "e2":
			policy, ok := recognizeEffect(value, "p2")
			if !ok {
				return &ConfigError{Section: section, Key: key, Msg: "unrecognized effect formula"}
			}
			m.EffectExt = policy
		default:
			return unknownKeyError(section, key)
		}

	case sectionMatcher:
		switch key {
		case "m":
			m.MatcherBasic = value
		case "m2":
			m.MatcherExt = value
		default:
			return unknownKeyError(section, key)
		}
	}
	return nil
}

// validate checks that at least one schema is complete.
func (m *Model) validate() error {
	basic := m.RequestBasic.Declared() || m.PolicyBasic.Declared() ||
		m.EffectBasic != EffectUnset || m.MatcherBasic != ""
	ext := m.RequestExt.Declared() || m.PolicyExt.Declared() ||
		m.EffectExt != EffectUnset || m.MatcherExt != ""

	if !basic && !ext {
		return &ConfigError{Msg: "no schema declared"}
	}

	if basic {
		if !m.RequestBasic.Declared() || !m.PolicyBasic.Declared() ||
			m.EffectBasic == EffectUnset || m.MatcherBasic == "" {
			return &ConfigError{Msg: "incomplete basic schema: r, p, e, and m must all be declared"}
		}
	}
	if ext {
		if !m.RequestExt.Declared() || !m.PolicyExt.Declared() ||
			m.EffectExt == EffectUnset || m.MatcherExt == "" {
			return &ConfigError{Msg: "incomplete extended schema: r2, p2, e2, and m2 must all be declared"}
		}
	}
	return nil
}

// splitFields splits a comma-separated field list.
func splitFields(value string) []string {
	parts := strings.Split(value, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			fields = append(fields, part)
		}
	}
	return fields
}

// recognizeEffect matches an effect formula against the canned
// allow-overrides, explicit-deny-wins form for the given policy key.
func recognizeEffect(value, policyKey string) (EffectPolicy, bool) {
	normalized := strings.ReplaceAll(value, " ", "")
	want := fmt.Sprintf("some(where(%[1]s.eft==allow))&&!some(where(%[1]s.eft==deny))", policyKey)
	if normalized == want {
		return EffectAllowAndNotDeny, true
	}
	return EffectUnset, false
}

func arityError(section, key string, want, got int) error {
	return &ConfigError{
		Section: section,
		Key:     key,
		Msg:     fmt.Sprintf("expected %d fields, got %d", want, got),
	}
}

func unknownKeyError(section, key string) error {
	return &ConfigError{Section: section, Key: key, Msg: "unknown key"}
}
