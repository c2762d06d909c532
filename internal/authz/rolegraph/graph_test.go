package rolegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_Reaches(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge("alice", "admin")
	g.AddEdge("admin", "superadmin")
	g.AddEdge("bob", "viewer")

	tests := []struct {
		name   string
		start  string
		target string
		want   bool
	}{
		{name: "direct edge", start: "alice", target: "admin", want: true},
		{name: "transitive", start: "alice", target: "superadmin", want: true},
		{name: "reflexive known node", start: "alice", target: "alice", want: true},
		{name: "reflexive unknown node", start: "ghost", target: "ghost", want: true},
		{name: "reverse direction", start: "admin", target: "alice", want: false},
		{name: "unrelated", start: "bob", target: "admin", want: false},
		{name: "unknown start", start: "ghost", target: "admin", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, g.Reaches(tt.start, tt.target))
		})
	}
}

func TestGraph_Reaches_Cycle(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	// The cycle must terminate and cover exactly its own members.
	assert.True(t, g.Reaches("a", "c"))
	assert.True(t, g.Reaches("c", "b"))
	assert.False(t, g.Reaches("a", "d"))
}

func TestGraph_AddEdge_Idempotent(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge("alice", "admin")
	g.AddEdge("alice", "admin")

	assert.Equal(t, 1, g.Edges())
	assert.True(t, g.HasEdge("alice", "admin"))
}

func TestGraph_RemoveEdge(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge("alice", "admin")
	g.AddEdge("admin", "superadmin")

	g.RemoveEdge("alice", "admin")

	assert.False(t, g.HasEdge("alice", "admin"))
	assert.False(t, g.Reaches("alice", "superadmin"))

	// Removing a missing edge is a no-op.
	g.RemoveEdge("alice", "admin")
	g.RemoveEdge("nobody", "nothing")
	assert.Equal(t, 1, g.Edges())
}

func TestGraph_Clone(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddEdge("alice", "admin")

	clone := g.Clone()
	clone.AddEdge("bob", "viewer")
	clone.RemoveEdge("alice", "admin")

	assert.True(t, g.Reaches("alice", "admin"))
	assert.False(t, g.HasEdge("bob", "viewer"))
	assert.False(t, clone.Reaches("alice", "admin"))
}

func TestDomains_Isolation(t *testing.T) {
	t.Parallel()

	d := NewDomains(DomainRole, DomainGroup)
	d.AddEdge(DomainRole, "alice", "admin")
	d.AddEdge(DomainGroup, "alice", "Admins")

	// Role edges must not leak into the group domain and vice versa.
	assert.True(t, d.Reaches(DomainRole, "alice", "admin"))
	assert.False(t, d.Reaches(DomainGroup, "alice", "admin"))
	assert.True(t, d.Reaches(DomainGroup, "alice", "Admins"))
	assert.False(t, d.Reaches(DomainRole, "alice", "Admins"))
}

func TestDomains_UnknownDomain(t *testing.T) {
	t.Parallel()

	d := NewDomains(DomainRole)

	// Reflexivity holds even for unknown domains; anything else is false.
	assert.True(t, d.Reaches("g9", "x", "x"))
	assert.False(t, d.Reaches("g9", "x", "y"))
	assert.Nil(t, d.Graph("g9"))

	// Edge mutation on an unknown domain is ignored.
	d.AddEdge("g9", "x", "y")
	assert.False(t, d.Reaches("g9", "x", "y"))
}

func TestDomains_Clone(t *testing.T) {
	t.Parallel()

	d := NewDomains(DomainRole, DomainGroup)
	d.AddEdge(DomainRole, "alice", "admin")

	clone := d.Clone()
	require.NotNil(t, clone.Graph(DomainRole))
	clone.AddEdge(DomainRole, "bob", "admin")

	assert.False(t, d.Reaches(DomainRole, "bob", "admin"))
	assert.True(t, clone.Reaches(DomainRole, "bob", "admin"))
}
