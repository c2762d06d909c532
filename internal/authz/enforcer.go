package authz

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthz/internal/authz/model"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// enforcerTracer is the OTEL tracer used for decision operations.
var enforcerTracer = otel.Tracer("avauthz/engine")

// DecisionRecorder receives every non-cached decision for auditing.
// Implementations must not block the decision path.
type DecisionRecorder interface {
	Record(ctx context.Context, req *Request, d *Decision)
}

// Enforcer answers authorization questions against the currently
// installed snapshot. Decisions are pure functions of the request and
// the snapshot captured at entry; a concurrent reload never affects an
// in-flight decision.
type Enforcer interface {
	// Decide answers one authorization question against the current
	// snapshot, with caching and instrumentation.
	Decide(ctx context.Context, req *Request) (*Decision, error)

	// DecideWith answers one authorization question against an explicit
	// snapshot. It is a pure function: no cache, no metrics, no audit.
	DecideWith(ctx context.Context, req *Request, snap *Snapshot) (*Decision, error)

	// Snapshot returns the currently installed snapshot, or nil.
	Snapshot() *Snapshot

	// Install atomically replaces the current snapshot.
	Install(snap *Snapshot)

	// Reload loads all rows from the store, builds a new snapshot, and
	// installs it. On failure the previous snapshot stays active.
	Reload(ctx context.Context) (*BuildReport, error)

	// Close releases the enforcer's resources.
	Close() error
}

// enforcer implements the Enforcer interface.
type enforcer struct {
	model    *model.Model
	store    Store
	snapshot atomic.Pointer[Snapshot]

	cache    DecisionCache
	logger   observability.Logger
	metrics  *Metrics
	recorder DecisionRecorder
}

// EnforcerOption is a functional option for the enforcer.
type EnforcerOption func(*enforcer)

// WithEnforcerLogger sets the logger.
func WithEnforcerLogger(logger observability.Logger) EnforcerOption {
	return func(e *enforcer) {
		e.logger = logger
	}
}

// WithEnforcerMetrics sets the metrics.
func WithEnforcerMetrics(metrics *Metrics) EnforcerOption {
	return func(e *enforcer) {
		e.metrics = metrics
	}
}

// WithDecisionCache sets the decision cache.
func WithDecisionCache(cache DecisionCache) EnforcerOption {
	return func(e *enforcer) {
		e.cache = cache
	}
}

// WithDecisionRecorder sets the audit recorder.
func WithDecisionRecorder(recorder DecisionRecorder) EnforcerOption {
	return func(e *enforcer) {
		e.recorder = recorder
	}
}

// NewEnforcer creates an enforcer over a model and a policy store. The
// store may be nil for callers that install snapshots directly; Reload
// then returns an error.
func NewEnforcer(m *model.Model, store Store, opts ...EnforcerOption) (Enforcer, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}

	e := &enforcer{
		model:  m,
		store:  store,
		logger: observability.NopLogger(),
		cache:  NewNoopDecisionCache(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Snapshot returns the currently installed snapshot, or nil.
func (e *enforcer) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Install atomically replaces the current snapshot. Cached decisions
// keyed by earlier versions simply stop matching.
func (e *enforcer) Install(snap *Snapshot) {
	e.snapshot.Store(snap)
	e.metrics.ObserveSnapshot(snap.Report())
}

// Reload loads all rows from the store, builds a new snapshot, and
// installs it. A build failure leaves the previous snapshot active.
func (e *enforcer) Reload(ctx context.Context) (*BuildReport, error) {
	if e.store == nil {
		return nil, errors.New("no policy store configured")
	}

	ctx, span := enforcerTracer.Start(ctx, "engine.reload",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	rows, err := e.store.LoadAll(ctx)
	if err != nil {
		e.metrics.RecordReload("failure")
		e.logger.Error("policy load failed", observability.Error(err))
		return nil, err
	}

	snap, err := BuildSnapshot(e.model, rows)
	if err != nil {
		e.metrics.RecordReload("failure")
		e.logger.Error("snapshot build failed", observability.Error(err))
		return nil, err
	}

	e.Install(snap)
	e.metrics.RecordReload("success")

	report := snap.Report()
	span.SetAttributes(
		attribute.String("engine.snapshot_version", snap.Version()),
		attribute.Int("engine.skipped_rows", len(report.Skipped)),
	)
	for _, rowErr := range report.Skipped {
		e.logger.Warn("policy row skipped",
			observability.Int("index", rowErr.Index),
			observability.String("tag", rowErr.Tag),
			observability.Error(rowErr),
		)
	}
	e.logger.Info("snapshot installed",
		observability.String("version", snap.Version()),
		observability.Int("basic_rules", report.BasicRules),
		observability.Int("extended_rules", report.ExtendedRules),
		observability.Int("skipped_rows", len(report.Skipped)),
	)
	return report, nil
}

// Decide answers one authorization question against the current
// snapshot.
func (e *enforcer) Decide(ctx context.Context, req *Request) (*Decision, error) {
	start := time.Now()

	ctx, span := enforcerTracer.Start(ctx, "engine.decide",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("engine.resource", req.Resource),
			attribute.String("engine.action", req.Action),
		),
	)
	defer span.End()

	schema := req.SchemaOf()

	snap := e.snapshot.Load()
	if snap == nil {
		span.SetAttributes(attribute.String("engine.result", "error"))
		e.metrics.RecordDecide(schema, "error", time.Since(start))
		return nil, ErrSnapshotNotLoaded
	}

	cacheKey := NewCacheKey(req, snap.Version())
	if cached, ok := e.cache.Get(ctx, cacheKey); ok {
		e.metrics.RecordCacheHit()
		span.SetAttributes(
			attribute.Bool("engine.cached", true),
			attribute.Bool("engine.allowed", cached.Allowed),
		)
		return &Decision{
			Allowed:         cached.Allowed,
			Reason:          cached.Reason,
			SnapshotVersion: cached.SnapshotVersion,
			Cached:          true,
		}, nil
	}
	e.metrics.RecordCacheMiss()

	decision, err := e.DecideWith(ctx, req, snap)
	if err != nil {
		span.SetAttributes(
			attribute.String("engine.result", "error"),
			attribute.String("engine.error", err.Error()),
		)
		e.metrics.RecordDecide(schema, "error", time.Since(start))
		return nil, err
	}

	e.cache.Set(ctx, cacheKey, &CachedDecision{
		Allowed:         decision.Allowed,
		Reason:          decision.Reason,
		SnapshotVersion: decision.SnapshotVersion,
	})

	result := "denied"
	if decision.Allowed {
		result = "allowed"
	}
	e.metrics.RecordDecide(schema, result, time.Since(start))
	e.metrics.RecordDecision(decision)
	e.metrics.RecordEvaluationErrors(len(decision.Errors))

	span.SetAttributes(
		attribute.Bool("engine.cached", false),
		attribute.Bool("engine.allowed", decision.Allowed),
		attribute.String("engine.reason", string(decision.Reason)),
		attribute.String("engine.snapshot_version", decision.SnapshotVersion),
	)

	e.logger.Debug("authorization decision",
		observability.String("subject", req.Subject),
		observability.String("resource", req.Resource),
		observability.String("action", req.Action),
		observability.String("schema", string(schema)),
		observability.Bool("allowed", decision.Allowed),
		observability.String("reason", string(decision.Reason)),
	)

	if e.recorder != nil {
		e.recorder.Record(ctx, req, decision)
	}

	return decision, nil
}

// DecideWith answers one authorization question against an explicit
// snapshot. Two calls with the same request and snapshot always return
// the same outcome.
func (e *enforcer) DecideWith(_ context.Context, req *Request, snap *Snapshot) (*Decision, error) {
	if snap == nil {
		return nil, ErrSnapshotNotLoaded
	}
	if req.Subject == "" {
		return nil, ErrNoSubject
	}

	schema := req.SchemaOf()
	if !e.schemaDeclared(snap, schema) {
		return nil, ErrSchemaNotDeclared
	}

	decision := &Decision{
		SnapshotVersion: snap.Version(),
	}

	// The superuser override precedes rule matching. It holds even for
	// an empty rule set and is always visible in the reason.
	if schema == SchemaExtended && isSuperuser(req.Attributes) {
		decision.Allowed = true
		decision.Reason = ReasonSuperuser
		return decision, nil
	}

	for _, rule := range snap.Rules(schema) {
		matched, err := snap.matchRule(req, rule)
		if err != nil {
			// The faulted row fails closed; the decision proceeds over
			// the remaining rows.
			decision.Errors = append(decision.Errors, &EvaluationError{
				Source: matchSource(rule),
				Err:    err,
			})
			continue
		}
		if matched {
			decision.MatchedRules = append(decision.MatchedRules, rule)
		}
	}

	decision.Allowed, decision.Reason = combineEffects(decision.MatchedRules)
	return decision, nil
}

// schemaDeclared reports whether the snapshot's model declares the
// request and policy shapes for a schema.
func (e *enforcer) schemaDeclared(snap *Snapshot, schema Schema) bool {
	m := snap.Model()
	switch schema {
	case SchemaBasic:
		return m.RequestBasic.Declared() && m.PolicyBasic.Declared()
	case SchemaExtended:
		return m.RequestExt.Declared() && m.PolicyExt.Declared()
	default:
		return false
	}
}

// isSuperuser reports whether the attribute bag carries the superuser
// role or group.
func isSuperuser(bag AttributeBag) bool {
	return bag.contains(attrRoles, SuperuserRole) || bag.contains(attrGroups, SuperuserGroup)
}

// matchSource names the failing row for an evaluation error.
func matchSource(rule *Rule) string {
	if rule.Predicate != "" {
		return rule.Predicate
	}
	return rule.Object
}

// Close closes the enforcer's cache.
func (e *enforcer) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// Ensure enforcer implements Enforcer.
var _ Enforcer = (*enforcer)(nil)
