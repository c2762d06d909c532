package authz

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avauthz/internal/authz/expr"
	"github.com/vyrodovalexey/avauthz/internal/authz/model"
	"github.com/vyrodovalexey/avauthz/internal/authz/rolegraph"
)

// BuildReport summarizes a snapshot build. Skipped rows are warnings,
// not failures: a snapshot installs as long as its model is valid.
type BuildReport struct {
	// SnapshotVersion is the version of the snapshot this report
	// belongs to.
	SnapshotVersion string

	// BasicRules and ExtendedRules count the compiled rules per schema.
	BasicRules    int
	ExtendedRules int

	// RoleEdges counts edges per role domain.
	RoleEdges map[string]int

	// Skipped lists every malformed row, in load order.
	Skipped []*PolicyRowError
}

// Snapshot is an immutable, versioned aggregate of compiled policy
// rules, role graphs, and matcher pipelines. It is never mutated in
// place; reloads build a new snapshot and swap it in atomically.
type Snapshot struct {
	version string
	builtAt time.Time

	model *model.Model

	basicRules    []*Rule
	extendedRules []*Rule
	graphs        *rolegraph.Domains

	matcherBasic *expr.Expr
	matcherExt   *expr.Expr

	report *BuildReport
}

// Version returns the snapshot's unique version.
func (s *Snapshot) Version() string {
	return s.version
}

// BuiltAt returns the snapshot's build time.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Model returns the model the snapshot was built against.
func (s *Snapshot) Model() *model.Model {
	return s.model
}

// Report returns the snapshot's build report.
func (s *Snapshot) Report() *BuildReport {
	return s.report
}

// Rules returns the compiled rules for a schema, in policy order.
func (s *Snapshot) Rules(schema Schema) []*Rule {
	switch schema {
	case SchemaBasic:
		return s.basicRules
	case SchemaExtended:
		return s.extendedRules
	default:
		return nil
	}
}

// Reaches exposes role-graph reachability for one domain.
func (s *Snapshot) Reaches(domain, start, target string) bool {
	return s.graphs.Reaches(domain, start, target)
}

// BuildSnapshot compiles a model and a sequence of tagged store rows
// into an immutable snapshot.
//
// Model defects (a matcher formula that does not compile) are fatal:
// no snapshot is produced and the caller keeps whatever snapshot it
// already has. Row defects (wrong field count, invalid effect, a
// predicate that does not parse, an undeclared schema tag) skip the
// offending row and continue; every skipped row is reported.
func BuildSnapshot(m *model.Model, rows []Row) (*Snapshot, error) {
	if m == nil {
		return nil, &model.ConfigError{Msg: "nil model"}
	}

	s := &Snapshot{
		version: uuid.NewString(),
		builtAt: time.Now().UTC(),
		model:   m,
		graphs:  rolegraph.NewDomains(m.RoleDomains...),
	}
	s.report = &BuildReport{
		SnapshotVersion: s.version,
		RoleEdges:       make(map[string]int),
	}

	if err := s.compileMatchers(); err != nil {
		return nil, err
	}

	for i, row := range rows {
		if rowErr := s.addRow(i, row); rowErr != nil {
			s.report.Skipped = append(s.report.Skipped, rowErr)
		}
	}

	s.report.BasicRules = len(s.basicRules)
	s.report.ExtendedRules = len(s.extendedRules)
	return s, nil
}

// compileMatchers compiles the declared matcher formulas once.
func (s *Snapshot) compileMatchers() error {
	if src := s.model.MatcherBasic; src != "" {
		compiled, err := expr.Compile(src)
		if err != nil {
			return &model.ConfigError{Section: "matchers", Key: "m", Msg: err.Error()}
		}
		s.matcherBasic = compiled
	}
	if src := s.model.MatcherExt; src != "" {
		compiled, err := expr.Compile(src)
		if err != nil {
			return &model.ConfigError{Section: "matchers", Key: "m2", Msg: err.Error()}
		}
		s.matcherExt = compiled
	}
	return nil
}

// addRow converts one tagged row into a rule or an edge.
func (s *Snapshot) addRow(index int, row Row) *PolicyRowError {
	switch row.Tag {
	case string(SchemaBasic):
		if !s.model.PolicyBasic.Declared() {
			return &PolicyRowError{Index: index, Tag: row.Tag, Msg: "schema not declared in model"}
		}
		if len(row.Fields) != len(s.model.PolicyBasic.Fields) {
			return fieldCountError(index, row, len(s.model.PolicyBasic.Fields))
		}
		effect, err := ParseEffect(row.Fields[3])
		if err != nil {
			return &PolicyRowError{Index: index, Tag: row.Tag, Msg: "invalid effect", Err: err}
		}
		s.basicRules = append(s.basicRules, &Rule{
			Schema: SchemaBasic,
			Who:    row.Fields[0],
			Object: row.Fields[1],
			Action: row.Fields[2],
			Effect: effect,
		})
		return nil

	case string(SchemaExtended):
		if !s.model.PolicyExt.Declared() {
			return &PolicyRowError{Index: index, Tag: row.Tag, Msg: "schema not declared in model"}
		}
		if len(row.Fields) != len(s.model.PolicyExt.Fields) {
			return fieldCountError(index, row, len(s.model.PolicyExt.Fields))
		}
		effect, err := ParseEffect(row.Fields[4])
		if err != nil {
			return &PolicyRowError{Index: index, Tag: row.Tag, Msg: "invalid effect", Err: err}
		}
		compiled, err := expr.Compile(row.Fields[3])
		if err != nil {
			return &PolicyRowError{Index: index, Tag: row.Tag, Msg: "predicate does not compile", Err: err}
		}
		s.extendedRules = append(s.extendedRules, &Rule{
			Schema:    SchemaExtended,
			Who:       row.Fields[0],
			Object:    row.Fields[1],
			Action:    row.Fields[2],
			Predicate: row.Fields[3],
			Effect:    effect,
			compiled:  compiled,
		})
		return nil

	case rolegraph.DomainRole, rolegraph.DomainGroup:
		if !s.model.HasDomain(row.Tag) {
			return &PolicyRowError{Index: index, Tag: row.Tag, Msg: "role domain not declared in model"}
		}
		if len(row.Fields) != 2 {
			return fieldCountError(index, row, 2)
		}
		s.graphs.AddEdge(row.Tag, row.Fields[0], row.Fields[1])
		s.report.RoleEdges[row.Tag]++
		return nil

	default:
		return &PolicyRowError{Index: index, Tag: row.Tag, Msg: "unknown row tag"}
	}
}

func fieldCountError(index int, row Row, want int) *PolicyRowError {
	return &PolicyRowError{
		Index: index,
		Tag:   row.Tag,
		Msg:   fmt.Sprintf("expected %d fields, got %d", want, len(row.Fields)),
	}
}
