package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	m := Default()

	assert.Equal(t, []string{"sub", "obj", "act"}, m.RequestBasic.Fields)
	assert.Equal(t, []string{"sub", "obj", "act", "expr"}, m.RequestExt.Fields)
	assert.Equal(t, []string{"sub", "obj", "act", "eft"}, m.PolicyBasic.Fields)
	assert.Equal(t, []string{"sub", "obj", "act", "expr", "eft"}, m.PolicyExt.Fields)
	assert.Equal(t, []string{"g", "g2"}, m.RoleDomains)
	assert.Equal(t, EffectAllowAndNotDeny, m.EffectBasic)
	assert.Equal(t, EffectAllowAndNotDeny, m.EffectExt)

	// Continued lines are joined into one matcher source.
	assert.Contains(t, m.MatcherBasic, "patternMatch(r.obj, p.obj)")
	assert.Contains(t, m.MatcherExt, `"Superuser" in r2.expr.roles`)
	assert.NotContains(t, m.MatcherExt, "\\")

	assert.True(t, m.HasDomain("g"))
	assert.True(t, m.HasDomain("g2"))
	assert.False(t, m.HasDomain("g3"))
}

func TestParse_BasicOnly(t *testing.T) {
	t.Parallel()

	text := `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act, eft

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = r.sub == p.sub && patternMatch(r.obj, p.obj) && r.act == p.act
`

	m, err := Parse(text)
	require.NoError(t, err)

	assert.True(t, m.RequestBasic.Declared())
	assert.False(t, m.RequestExt.Declared())
	assert.Equal(t, []string{"g"}, m.RoleDomains)
}

func TestParse_ConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{
			name: "unknown section",
			text: "[request_definition]\nr = sub, obj, act\n[evaluators]\nx = y\n",
		},
		{
			name: "unknown key",
			text: "[request_definition]\nr3 = sub, obj, act\n",
		},
		{
			name: "wrong request arity",
			text: "[request_definition]\nr = sub, obj\n",
		},
		{
			name: "wrong policy arity",
			text: "[policy_definition]\np = sub, obj, act, expr, eft, extra\n",
		},
		{
			name: "policy missing eft",
			text: "[policy_definition]\np = sub, obj, act, effect\n",
		},
		{
			name: "wrong role arity",
			text: "[role_definition]\ng = _, _, _\n",
		},
		{
			name: "duplicate role relation",
			text: "[role_definition]\ng = _, _\ng = _, _\n",
		},
		{
			name: "unknown effect formula",
			text: "[policy_effect]\ne = priority(p.eft) || deny\n",
		},
		{
			name: "assignment outside section",
			text: "r = sub, obj, act\n",
		},
		{
			name: "malformed section header",
			text: "[request_definition\nr = sub, obj, act\n",
		},
		{
			name: "malformed assignment",
			text: "[matchers]\nm r.sub\n",
		},
		{
			name: "empty model",
			text: "",
		},
		{
			name: "incomplete basic schema",
			text: "[request_definition]\nr = sub, obj, act\n",
		},
		{
			name: "incomplete extended schema",
			text: "[request_definition]\nr2 = sub, obj, act, expr\n[matchers]\nm2 = true\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := Parse(tt.text)
			require.Error(t, err)
			assert.Nil(t, m)

			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestParse_CommentsAndContinuations(t *testing.T) {
	t.Parallel()

	text := `
# full-line comment
[request_definition]
r = sub, obj, act   # trailing comment

[policy_definition]
p = sub, obj, act, eft

[policy_effect]
e = some(where (p.eft == allow)) && \
    !some(where (p.eft == deny))

[matchers]
m = r.sub == p.sub && \
    r.obj == p.obj && \
    r.act == p.act
`

	m, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, EffectAllowAndNotDeny, m.EffectBasic)
	assert.Equal(t, "r.sub == p.sub && r.obj == p.obj && r.act == p.act", m.MatcherBasic)
}
