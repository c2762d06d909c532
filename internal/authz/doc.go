// Package authz implements the access-control policy decision engine:
// immutable policy snapshots built from tagged store rows, a matcher
// pipeline composing role-graph lookups, resource pattern matching and
// compiled predicates, an allow-overrides / explicit-deny-wins effect
// combinator with an audited superuser override, and an Enforcer whose
// Decide is a pure function of (request, snapshot).
//
// The engine never mutates policy state: the external store adapter
// owns persistence, and a reload replaces the current snapshot with a
// single atomic pointer swap. In-flight decisions keep the snapshot
// they captured at entry.
package authz
