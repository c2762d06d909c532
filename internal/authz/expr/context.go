package expr

import (
	"errors"
	"fmt"
	"strings"
)

// Evaluation errors. All of them cause the affected predicate to fail
// closed; none of them aborts an overall decision.
var (
	// ErrUnknownVariable indicates a reference to a variable the
	// context does not define.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrUnknownFunction indicates a call to a function outside the
	// registry.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrTypeMismatch indicates an operand of the wrong type, such as
	// a membership test against a non-sequence.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrArity indicates a call with the wrong number of arguments.
	ErrArity = errors.New("wrong number of arguments")
)

// Value is an expression value: a string, a bool, or an ordered
// sequence of strings.
type Value interface{}

// FuncImpl is the implementation of a registry function. It must be
// side-effect-free and must not perform I/O.
type FuncImpl func(ctx *Context, args []Value) (Value, error)

// fn is a registry entry.
type fn struct {
	arity int
	impl  FuncImpl
}

// Context carries the variables, attribute bags, and function registry
// an expression is evaluated against. A context is built per row
// evaluation and is not safe for concurrent mutation.
type Context struct {
	vars  map[string]Value
	bags  map[string]map[string]Value
	funcs map[string]fn
}

// NewContext creates an empty evaluation context.
func NewContext() *Context {
	return &Context{
		vars:  make(map[string]Value),
		bags:  make(map[string]map[string]Value),
		funcs: make(map[string]fn),
	}
}

// SetVar binds a dotted variable name to a value.
func (c *Context) SetVar(name string, v Value) {
	c.vars[name] = v
}

// SetBag binds an attribute bag under a dotted prefix. A reference
// "prefix.field" resolves to bag["field"].
func (c *Context) SetBag(prefix string, bag map[string]Value) {
	c.bags[prefix] = bag
}

// SetFunc registers a function with a fixed arity.
func (c *Context) SetFunc(name string, arity int, impl FuncImpl) {
	c.funcs[name] = fn{arity: arity, impl: impl}
}

// resolve looks up a dotted variable reference: exact variables first,
// then attribute bag fields under a registered prefix.
func (c *Context) resolve(name string) (Value, bool) {
	if v, ok := c.vars[name]; ok {
		return v, true
	}
	for prefix, bag := range c.bags {
		if strings.HasPrefix(name, prefix+".") {
			if v, ok := bag[name[len(prefix)+1:]]; ok {
				return v, true
			}
		}
	}
	return nil, false
}

// call invokes a registry function with arity checking.
func (c *Context) call(name string, args []Value) (Value, error) {
	f, ok := c.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if f.arity >= 0 && len(args) != f.arity {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrArity, name, f.arity, len(args))
	}
	return f.impl(c, args)
}

// asBool coerces a value to bool.
func asBool(v Value) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected bool, got %T", ErrTypeMismatch, v)
	}
	return b, nil
}

// asString coerces a value to string.
func asString(v Value) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected string, got %T", ErrTypeMismatch, v)
	}
	return s, nil
}

// asStrings coerces a value to a string sequence.
func asStrings(v Value) ([]string, error) {
	seq, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("%w: expected sequence of strings, got %T", ErrTypeMismatch, v)
	}
	return seq, nil
}
