// Package model parses the authorization model definition: the
// wire-format contract describing request and policy schemas, role
// relation domains, effect formulas, and matcher formulas. Two schemas
// coexist: the basic schema (r/p/e/m) and the extended schema
// (r2/p2/e2/m2) whose requests carry an attribute bag and whose policy
// rows carry a predicate expression.
package model
