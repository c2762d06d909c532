package expr

import "fmt"

// Expr is a compiled expression. Compilation happens once per policy
// row or matcher formula; evaluation walks the tree against a context
// and is safe for concurrent use with distinct contexts.
type Expr struct {
	src  string
	root node
}

// Source returns the original expression source.
func (e *Expr) Source() string {
	return e.src
}

// Eval evaluates the expression to a boolean. A non-boolean result is
// a type mismatch.
func (e *Expr) Eval(ctx *Context) (bool, error) {
	v, err := e.root.eval(ctx)
	if err != nil {
		return false, err
	}
	return asBool(v)
}

// node is one AST node.
type node interface {
	eval(ctx *Context) (Value, error)
}

// litNode is a boolean or string literal.
type litNode struct {
	v Value
}

func (n *litNode) eval(*Context) (Value, error) {
	return n.v, nil
}

// varNode is a dotted variable reference.
type varNode struct {
	name string
}

func (n *varNode) eval(ctx *Context) (Value, error) {
	v, ok := ctx.resolve(n.name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, n.name)
	}
	return v, nil
}

// callNode is a call into the function registry.
type callNode struct {
	name string
	args []node
}

func (n *callNode) eval(ctx *Context) (Value, error) {
	args := make([]Value, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(ctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return ctx.call(n.name, args)
}

// notNode is logical negation.
type notNode struct {
	x node
}

func (n *notNode) eval(ctx *Context) (Value, error) {
	v, err := n.x.eval(ctx)
	if err != nil {
		return nil, err
	}
	b, err := asBool(v)
	if err != nil {
		return nil, err
	}
	return !b, nil
}

// andNode is short-circuiting conjunction.
type andNode struct {
	left, right node
}

func (n *andNode) eval(ctx *Context) (Value, error) {
	lv, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	lb, err := asBool(lv)
	if err != nil {
		return nil, err
	}
	if !lb {
		return false, nil
	}
	rv, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	return asBool(rv)
}

// orNode is short-circuiting disjunction.
type orNode struct {
	left, right node
}

func (n *orNode) eval(ctx *Context) (Value, error) {
	lv, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	lb, err := asBool(lv)
	if err != nil {
		return nil, err
	}
	if lb {
		return true, nil
	}
	rv, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	return asBool(rv)
}

// eqNode is string equality or inequality.
type eqNode struct {
	left, right node
	negate      bool
}

func (n *eqNode) eval(ctx *Context) (Value, error) {
	lv, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	ls, err := asString(lv)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := asString(rv)
	if err != nil {
		return nil, err
	}
	if n.negate {
		return ls != rs, nil
	}
	return ls == rs, nil
}

// inNode is membership of a string in a string sequence.
type inNode struct {
	left, right node
}

func (n *inNode) eval(ctx *Context) (Value, error) {
	lv, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	ls, err := asString(lv)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	seq, err := asStrings(rv)
	if err != nil {
		return nil, err
	}
	for _, s := range seq {
		if s == ls {
			return true, nil
		}
	}
	return false, nil
}
