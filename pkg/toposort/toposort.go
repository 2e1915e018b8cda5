// Package toposort provides a deterministic topological sort over
// string-keyed DAGs. Nodes are interned to dense integer IDs in
// insertion order; ties between ready nodes are broken by that order,
// so adding commits oldest-first yields an ordering that respects both
// the edge partial order and the original log order.
package toposort

// Graph is a directed acyclic graph with string node names.
type Graph struct {
	symbols  *SymbolTable
	intGraph *IntGraph
}

// NewGraph initializes an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		symbols:  NewSymbolTable(),
		intGraph: NewIntGraph(),
	}
}

// AddNode inserts a node. Returns false when the node already exists.
func (g *Graph) AddNode(name string) bool {
	if _, exists := g.symbols.Lookup(name); exists {
		return false
	}

	return g.intGraph.AddNode(g.symbols.Intern(name))
}

// AddEdge inserts the edge from -> to, interning both endpoints.
// Returns false when the edge already exists.
func (g *Graph) AddEdge(from, to string) bool {
	u := g.symbols.Intern(from)
	v := g.symbols.Intern(to)

	g.intGraph.AddNode(u)
	g.intGraph.AddNode(v)

	return g.intGraph.AddEdge(u, v)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return g.symbols.Len()
}

// Toposort returns the nodes in topological order, insertion order
// breaking ties. The second return value is false when the graph
// contains a cycle.
func (g *Graph) Toposort() ([]string, bool) {
	ids, ok := g.intGraph.TopoSort()

	result := make([]string, len(ids))
	for i, id := range ids {
		result[i] = g.symbols.Resolve(id)
	}

	return result, ok
}

// FindCycle returns a cycle containing the seed node, or an empty slice
// when the seed is on no cycle. The closing repetition of the seed is
// stripped.
func (g *Graph) FindCycle(seed string) []string {
	id, exists := g.symbols.Lookup(seed)
	if !exists {
		return []string{}
	}

	cycleIDs := g.intGraph.FindCycle(id)
	if len(cycleIDs) > 1 && cycleIDs[0] == cycleIDs[len(cycleIDs)-1] {
		cycleIDs = cycleIDs[:len(cycleIDs)-1]
	}

	result := make([]string, len(cycleIDs))
	for i, cid := range cycleIDs {
		result[i] = g.symbols.Resolve(cid)
	}

	return result
}
