package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testContext builds a context resembling an extended request row
// evaluation.
func testContext() *Context {
	ctx := NewContext()
	ctx.SetVar("r2.sub", "alice")
	ctx.SetVar("r2.obj", "/data/42/file")
	ctx.SetVar("r2.act", "read")
	ctx.SetVar("p2.sub", "alice")
	ctx.SetVar("p2.act", "*")
	ctx.SetBag("r2.expr", map[string]Value{
		"owner_id": "alice",
		"roles":    []string{"editor", "admin"},
		"groups":   []string{"Users"},
	})
	ctx.SetFunc("patternMatch", 2, func(_ *Context, args []Value) (Value, error) {
		a, err := asString(args[0])
		if err != nil {
			return nil, err
		}
		b, err := asString(args[1])
		if err != nil {
			return nil, err
		}
		return a == b, nil
	})
	return ctx
}

func TestCompileAndEval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{name: "bool literal", src: "true", want: true},
		{name: "negation", src: "!false", want: true},
		{name: "double negation", src: "!!true", want: true},
		{name: "string equality", src: `r2.sub == "alice"`, want: true},
		{name: "string inequality", src: `r2.sub != "bob"`, want: true},
		{name: "single quoted literal", src: `r2.act == 'read'`, want: true},
		{name: "bag field", src: `r2.expr.owner_id == r2.sub`, want: true},
		{name: "membership hit", src: `"admin" in r2.expr.roles`, want: true},
		{name: "membership miss", src: `"Superuser" in r2.expr.roles`, want: false},
		{name: "and", src: `r2.sub == "alice" && r2.act == "read"`, want: true},
		{name: "or", src: `r2.sub == "bob" || r2.act == "read"`, want: true},
		{name: "precedence and over or", src: `false && false || true`, want: true},
		{name: "parens override", src: `false && (false || true)`, want: false},
		{name: "call", src: `patternMatch(r2.sub, p2.sub)`, want: true},
		{name: "call in conjunction", src: `patternMatch(r2.sub, p2.sub) && p2.act == "*"`, want: true},
		{name: "not applied to call", src: `!patternMatch(r2.act, p2.act)`, want: true},
		{name: "escaped quote", src: `"a\"b" == "a\"b"`, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := Compile(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.src, e.Source())

			got, err := e.Eval(testContext())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_SyntaxErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{name: "empty", src: ""},
		{name: "dangling operator", src: `r2.sub ==`},
		{name: "single ampersand", src: `true & false`},
		{name: "single pipe", src: `true | false`},
		{name: "single equals", src: `a = b`},
		{name: "unterminated string", src: `"abc`},
		{name: "unterminated paren", src: `(true`},
		{name: "unterminated call", src: `patternMatch(a, b`},
		{name: "trailing garbage", src: `true true`},
		{name: "unexpected character", src: `a == $b`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := Compile(tt.src)
			assert.Error(t, err)
			assert.Nil(t, e)
		})
	}
}

func TestEval_FailsClosedErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{name: "unknown variable", src: `r2.missing == "x"`, wantErr: ErrUnknownVariable},
		{name: "unknown bag field", src: `r2.expr.missing == "x"`, wantErr: ErrUnknownVariable},
		{name: "unknown function", src: `nope(r2.sub)`, wantErr: ErrUnknownFunction},
		{name: "wrong arity", src: `patternMatch(r2.sub)`, wantErr: ErrArity},
		{name: "in against non-sequence", src: `"x" in r2.sub`, wantErr: ErrTypeMismatch},
		{name: "in with non-string left", src: `r2.expr.roles in r2.expr.roles`, wantErr: ErrTypeMismatch},
		{name: "equality on sequence", src: `r2.expr.roles == "admin"`, wantErr: ErrTypeMismatch},
		{name: "negating a string", src: `!r2.sub`, wantErr: ErrTypeMismatch},
		{name: "and over string", src: `r2.sub && true`, wantErr: ErrTypeMismatch},
		{name: "bare string result", src: `r2.sub`, wantErr: ErrTypeMismatch},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := Compile(tt.src)
			require.NoError(t, err)

			got, err := e.Eval(testContext())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, got)
		})
	}
}

func TestEval_ShortCircuit(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	called := false
	ctx.SetFunc("boom", 0, func(*Context, []Value) (Value, error) {
		called = true
		return nil, ErrTypeMismatch
	})

	e := MustCompile(`false && boom()`)
	got, err := e.Eval(ctx)
	require.NoError(t, err)
	assert.False(t, got)
	assert.False(t, called, "right operand of a false && must not run")

	e = MustCompile(`true || boom()`)
	got, err = e.Eval(ctx)
	require.NoError(t, err)
	assert.True(t, got)
	assert.False(t, called, "right operand of a true || must not run")
}

func TestEval_Purity(t *testing.T) {
	t.Parallel()

	e := MustCompile(`"admin" in r2.expr.roles && r2.sub == "alice"`)

	// Identical inputs, identical outputs.
	for i := 0; i < 3; i++ {
		got, err := e.Eval(testContext())
		require.NoError(t, err)
		assert.True(t, got)
	}
}

func TestMustCompile_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { MustCompile(`((`) })
}
