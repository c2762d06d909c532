// Package expr compiles and evaluates the closed boolean expression
// grammar used by matcher formulas and policy predicates.
//
// The grammar is deliberately not a scripting language. It admits
// boolean and string literals, dotted variable references into the
// evaluation context, calls into a fixed function registry, the
// short-circuiting operators && and ||, unary !, string equality and
// inequality, and membership tests of the form `value in sequence`.
// Expressions are compiled once, at snapshot build time, and the
// resulting tree is evaluated per request without re-parsing.
package expr
