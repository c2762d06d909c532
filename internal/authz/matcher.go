package authz

import (
	"fmt"

	"github.com/vyrodovalexey/avauthz/internal/authz/expr"
	"github.com/vyrodovalexey/avauthz/internal/authz/pattern"
)

// matchRule evaluates the snapshot's matcher formula for the rule's
// schema against one request/rule pair. An evaluation fault (unresolved
// variable, unknown function, type mismatch, malformed placeholder)
// makes the rule non-matching and is surfaced to the caller.
func (s *Snapshot) matchRule(req *Request, rule *Rule) (bool, error) {
	var matcher *expr.Expr
	switch rule.Schema {
	case SchemaBasic:
		matcher = s.matcherBasic
	case SchemaExtended:
		matcher = s.matcherExt
	}
	if matcher == nil {
		return false, fmt.Errorf("no matcher declared for schema %q", rule.Schema)
	}

	return matcher.Eval(s.evalContext(req, rule))
}

// evalContext binds the request and rule fields under the model's
// declared field names and registers the function registry. A fresh
// context is built per rule so per-row eval closures never leak across
// rows.
func (s *Snapshot) evalContext(req *Request, rule *Rule) *expr.Context {
	ctx := expr.NewContext()

	switch rule.Schema {
	case SchemaBasic:
		r := s.model.RequestBasic.Fields
		ctx.SetVar("r."+r[0], req.Subject)
		ctx.SetVar("r."+r[1], req.Resource)
		ctx.SetVar("r."+r[2], req.Action)

		p := s.model.PolicyBasic.Fields
		ctx.SetVar("p."+p[0], rule.Who)
		ctx.SetVar("p."+p[1], rule.Object)
		ctx.SetVar("p."+p[2], rule.Action)
		ctx.SetVar("p."+p[3], string(rule.Effect))

	case SchemaExtended:
		r := s.model.RequestExt.Fields
		ctx.SetVar("r2."+r[0], req.Subject)
		ctx.SetVar("r2."+r[1], req.Resource)
		ctx.SetVar("r2."+r[2], req.Action)

		bag := req.Attributes.exprBag()
		// The roles and groups attributes always resolve, so the
		// superuser clause in the matcher never faults on requests
		// that do not carry them.
		if _, ok := bag[attrRoles]; !ok {
			bag[attrRoles] = []string{}
		}
		if _, ok := bag[attrGroups]; !ok {
			bag[attrGroups] = []string{}
		}
		ctx.SetBag("r2."+r[3], bag)

		p := s.model.PolicyExt.Fields
		ctx.SetVar("p2."+p[0], rule.Who)
		ctx.SetVar("p2."+p[1], rule.Object)
		ctx.SetVar("p2."+p[2], rule.Action)
		ctx.SetVar("p2."+p[3], rule.Predicate)
		ctx.SetVar("p2."+p[4], string(rule.Effect))
	}

	s.registerFuncs(ctx, rule)
	return ctx
}

// registerFuncs installs the fixed function registry: resource pattern
// matching, one reachability function per declared role domain, the
// generic three-argument reachability form, and the per-row eval
// closure over the rule's pre-compiled predicate.
func (s *Snapshot) registerFuncs(ctx *expr.Context, rule *Rule) {
	ctx.SetFunc("patternMatch", 2, func(_ *expr.Context, args []expr.Value) (expr.Value, error) {
		resource, err := argString("patternMatch", args, 0)
		if err != nil {
			return nil, err
		}
		pat, err := argString("patternMatch", args, 1)
		if err != nil {
			return nil, err
		}
		return pattern.MatchStrict(pat, resource)
	})

	for _, domain := range s.model.RoleDomains {
		domain := domain
		ctx.SetFunc(domain, 2, func(_ *expr.Context, args []expr.Value) (expr.Value, error) {
			start, err := argString(domain, args, 0)
			if err != nil {
				return nil, err
			}
			target, err := argString(domain, args, 1)
			if err != nil {
				return nil, err
			}
			return s.graphs.Reaches(domain, start, target), nil
		})
	}

	ctx.SetFunc("roleReaches", 3, func(_ *expr.Context, args []expr.Value) (expr.Value, error) {
		domain, err := argString("roleReaches", args, 0)
		if err != nil {
			return nil, err
		}
		start, err := argString("roleReaches", args, 1)
		if err != nil {
			return nil, err
		}
		target, err := argString("roleReaches", args, 2)
		if err != nil {
			return nil, err
		}
		return s.graphs.Reaches(domain, start, target), nil
	})

	if rule.compiled != nil {
		compiled := rule.compiled
		ctx.SetFunc("eval", 1, func(c *expr.Context, _ []expr.Value) (expr.Value, error) {
			// The argument names the predicate column; the row's own
			// pre-compiled AST is what actually runs, against the same
			// context.
			return compiled.Eval(c)
		})
	}
}

// argString coerces one function argument to a string.
func argString(fn string, args []expr.Value, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s argument %d: expected string, got %T",
			expr.ErrTypeMismatch, fn, i+1, args[i])
	}
	return s, nil
}
