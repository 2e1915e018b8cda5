package history

import (
	"fmt"
)

// Graph is an immutable commit DAG plus the original log order
// (oldest first). Build it once with NewGraph; reads are safe for
// concurrent use.
type Graph struct {
	commits map[ID]*Commit
	order   []ID
	index   map[ID]int
	base    ID
}

// NewGraph validates a commit sequence (oldest first) and builds a Graph.
// base is the designated root boundary: a parent reference that does not
// resolve inside the sequence is legal only when it equals base. An empty
// base means the first commit must be parentless.
//
// Returns ErrEmptyHistory, ErrMalformedHistory (duplicate ID, unknown
// parent, cycle) or ErrMergeUnsupported.
func NewGraph(commits []*Commit, base ID) (*Graph, error) {
	if len(commits) == 0 {
		return nil, ErrEmptyHistory
	}

	byID := make(map[ID]*Commit, len(commits))
	order := make([]ID, 0, len(commits))
	index := make(map[ID]int, len(commits))

	for i, commit := range commits {
		if _, dup := byID[commit.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate commit %s", ErrMalformedHistory, commit.ID)
		}

		byID[commit.ID] = commit
		order = append(order, commit.ID)
		index[commit.ID] = i
	}

	graph := &Graph{commits: byID, order: order, index: index, base: base}

	err := graph.validate()
	if err != nil {
		return nil, err
	}

	return graph, nil
}

// validate checks parent resolution, linearity and acyclicity.
// Cycle detection uses Kahn-style in-degree elimination with an explicit
// worklist; deep histories must not recurse.
func (g *Graph) validate() error {
	for _, id := range g.order {
		commit := g.commits[id]

		if len(commit.Parents) > 1 {
			return fmt.Errorf("%w: commit %s has %d parents", ErrMergeUnsupported, id, len(commit.Parents))
		}

		for _, parent := range commit.Parents {
			if parent == g.base {
				continue
			}

			if _, ok := g.commits[parent]; !ok {
				return fmt.Errorf("%w: commit %s references unknown parent %s", ErrMalformedHistory, id, parent)
			}
		}
	}

	return g.checkAcyclic()
}

func (g *Graph) checkAcyclic() error {
	// children[p] lists commits whose parent is p; inDegree counts
	// unresolved parents inside the graph.
	children := make(map[ID][]ID, len(g.commits))
	inDegree := make(map[ID]int, len(g.commits))

	for _, id := range g.order {
		inDegree[id] = 0
	}

	for _, id := range g.order {
		for _, parent := range g.commits[id].Parents {
			if _, ok := g.commits[parent]; !ok {
				continue
			}

			children[parent] = append(children[parent], id)
			inDegree[id]++
		}
	}

	worklist := make([]ID, 0, len(g.commits))

	for _, id := range g.order {
		if inDegree[id] == 0 {
			worklist = append(worklist, id)
		}
	}

	visited := 0

	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		visited++

		for _, child := range children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				worklist = append(worklist, child)
			}
		}
	}

	if visited != len(g.commits) {
		return fmt.Errorf("%w: cycle detected among %d commits", ErrMalformedHistory, len(g.commits)-visited)
	}

	return nil
}

// Len returns the number of commits.
func (g *Graph) Len() int {
	return len(g.commits)
}

// Base returns the designated root boundary identifier.
func (g *Graph) Base() ID {
	return g.base
}

// Contains reports whether the identifier is part of the graph.
func (g *Graph) Contains(id ID) bool {
	_, ok := g.commits[id]

	return ok
}

// Get returns the commit with the given identifier.
func (g *Graph) Get(id ID) (*Commit, error) {
	commit, ok := g.commits[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommit, id)
	}

	return commit, nil
}

// Order returns the original log order, oldest first. The caller must
// not mutate the returned slice.
func (g *Graph) Order() []ID {
	return g.order
}

// Index returns the position of the commit in the original log order,
// or -1 when the identifier is unknown.
func (g *Graph) Index(id ID) int {
	idx, ok := g.index[id]
	if !ok {
		return -1
	}

	return idx
}

// Commits returns the commits in original log order.
func (g *Graph) Commits() []*Commit {
	commits := make([]*Commit, 0, len(g.order))
	for _, id := range g.order {
		commits = append(commits, g.commits[id])
	}

	return commits
}
