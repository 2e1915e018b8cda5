package toposort

import "sort"

// IntGraph is a directed graph over dense integer IDs, stored as an
// adjacency list plus per-node in-degrees.
type IntGraph struct {
	// nodes[u] lists every v with an edge u -> v.
	nodes [][]int
	// inDegree[v] counts edges into v.
	inDegree []int
}

// NewIntGraph creates an empty IntGraph.
func NewIntGraph() *IntGraph {
	return &IntGraph{
		nodes:    make([][]int, 0),
		inDegree: make([]int, 0),
	}
}

// EnsureCapacity grows the graph to hold at least n nodes.
func (g *IntGraph) EnsureCapacity(n int) {
	if n <= len(g.nodes) {
		return
	}

	newNodes := make([][]int, n)
	copy(newNodes, g.nodes)
	g.nodes = newNodes

	newInDegree := make([]int, n)
	copy(newInDegree, g.inDegree)
	g.inDegree = newInDegree
}

// AddNode ensures the node ID exists. Returns true when the ID was new.
func (g *IntGraph) AddNode(id int) bool {
	if id < len(g.nodes) {
		return false
	}

	g.EnsureCapacity(id + 1)

	return true
}

// AddEdge adds a directed edge u -> v. Returns false when the edge
// already exists.
func (g *IntGraph) AddEdge(u, v int) bool {
	g.EnsureCapacity(maxInt(u, v) + 1)

	for _, neighbor := range g.nodes[u] {
		if neighbor == v {
			return false
		}
	}

	g.nodes[u] = append(g.nodes[u], v)
	g.inDegree[v]++

	return true
}

// TopoSort orders the nodes with Kahn's algorithm. The ready queue is
// kept sorted by ID so the result is deterministic: among nodes whose
// predecessors are all emitted, the lowest ID goes first. Returns false
// when a cycle prevents a complete ordering.
func (g *IntGraph) TopoSort() ([]int, bool) {
	n := len(g.nodes)
	if n == 0 {
		return []int{}, true
	}

	inDegree := make([]int, n)
	copy(inDegree, g.inDegree)

	queue := make([]int, 0, n)

	for i := range n {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	sort.Ints(queue)

	result := make([]int, 0, n)

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		result = append(result, u)

		for _, v := range g.nodes[u] {
			inDegree[v]--
			if inDegree[v] == 0 {
				insertSorted(&queue, v)
			}
		}
	}

	if len(result) != n {
		return result, false
	}

	return result, true
}

// FindCycle returns a cycle through start as start -> ... -> start, or
// an empty slice when start is on no cycle. Traversal is an iterative
// BFS with an explicit queue.
func (g *IntGraph) FindCycle(start int) []int {
	if start >= len(g.nodes) {
		return []int{}
	}

	parent := map[int]int{start: -1}
	queue := []int{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, v := range g.nodes[u] {
			if v == start {
				return reconstructCycle(parent, start, u)
			}

			if _, visited := parent[v]; !visited {
				parent[v] = u
				queue = append(queue, v)
			}
		}
	}

	return []int{}
}

func reconstructCycle(parent map[int]int, start, last int) []int {
	cycle := []int{start}

	for curr := last; curr != start && curr != -1; curr = parent[curr] {
		cycle = append(cycle, curr)
	}

	cycle = append(cycle, start)

	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}

	return cycle
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

// insertSorted inserts v into the sorted slice s, keeping it sorted.
func insertSorted(s *[]int, v int) {
	i := sort.SearchInts(*s, v)
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}
