package rolegraph

// Well-known domain names. The role domain is populated from "g" rows
// and the group domain from "g2" rows; they are never merged.
const (
	DomainRole  = "g"
	DomainGroup = "g2"
)

// Graph is a directed membership graph. An edge child -> parent means
// the child inherits whatever is granted to the parent.
type Graph struct {
	parents map[string]map[string]struct{}
}

// NewGraph creates an empty membership graph.
func NewGraph() *Graph {
	return &Graph{
		parents: make(map[string]map[string]struct{}),
	}
}

// AddEdge adds a child -> parent edge. Duplicate edges are no-ops.
func (g *Graph) AddEdge(child, parent string) {
	set, ok := g.parents[child]
	if !ok {
		set = make(map[string]struct{})
		g.parents[child] = set
	}
	set[parent] = struct{}{}
}

// RemoveEdge removes a child -> parent edge if present.
func (g *Graph) RemoveEdge(child, parent string) {
	set, ok := g.parents[child]
	if !ok {
		return
	}
	delete(set, parent)
	if len(set) == 0 {
		delete(g.parents, child)
	}
}

// HasEdge reports whether a direct child -> parent edge exists.
func (g *Graph) HasEdge(child, parent string) bool {
	set, ok := g.parents[child]
	if !ok {
		return false
	}
	_, ok = set[parent]
	return ok
}

// Reaches reports whether target is reachable from start by following
// child -> parent edges. Every node reaches itself. Cycles terminate
// via the visited set and do not extend reachability beyond their own
// members.
func (g *Graph) Reaches(start, target string) bool {
	if start == target {
		return true
	}

	visited := map[string]struct{}{start: {}}
	queue := []string{start}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for parent := range g.parents[node] {
			if parent == target {
				return true
			}
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = struct{}{}
			queue = append(queue, parent)
		}
	}

	return false
}

// Nodes returns the number of nodes that have at least one outgoing edge.
func (g *Graph) Nodes() int {
	return len(g.parents)
}

// Edges returns the total number of edges in the graph.
func (g *Graph) Edges() int {
	n := 0
	for _, set := range g.parents {
		n += len(set)
	}
	return n
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	clone := NewGraph()
	for child, set := range g.parents {
		dst := make(map[string]struct{}, len(set))
		for parent := range set {
			dst[parent] = struct{}{}
		}
		clone.parents[child] = dst
	}
	return clone
}

// Domains aggregates independent membership graphs keyed by domain name.
type Domains struct {
	graphs map[string]*Graph
}

// NewDomains creates a Domains aggregate with the given domain names.
func NewDomains(names ...string) *Domains {
	d := &Domains{graphs: make(map[string]*Graph, len(names))}
	for _, name := range names {
		d.graphs[name] = NewGraph()
	}
	return d
}

// Graph returns the graph for a domain, or nil if the domain is unknown.
func (d *Domains) Graph(domain string) *Graph {
	return d.graphs[domain]
}

// AddEdge adds an edge in the named domain. Unknown domains are ignored.
func (d *Domains) AddEdge(domain, child, parent string) {
	if g := d.graphs[domain]; g != nil {
		g.AddEdge(child, parent)
	}
}

// RemoveEdge removes an edge in the named domain. Unknown domains are
// ignored.
func (d *Domains) RemoveEdge(domain, child, parent string) {
	if g := d.graphs[domain]; g != nil {
		g.RemoveEdge(child, parent)
	}
}

// Reaches reports reachability within a single domain. Reflexivity
// holds for any node, including in unknown domains.
func (d *Domains) Reaches(domain, start, target string) bool {
	if start == target {
		return true
	}
	g := d.graphs[domain]
	if g == nil {
		return false
	}
	return g.Reaches(start, target)
}

// Clone returns a deep copy of all domains.
func (d *Domains) Clone() *Domains {
	clone := &Domains{graphs: make(map[string]*Graph, len(d.graphs))}
	for name, g := range d.graphs {
		clone.graphs[name] = g.Clone()
	}
	return clone
}
