// Package plan synthesizes an ordered rebase command plan from a commit
// graph and a classification. Surviving commits are linearized
// parent-before-child with ties broken by original log order; squash
// groups collapse onto their target's slot with merged change sets.
package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Sumatoshi-tech/replan/pkg/history"
	"github.com/Sumatoshi-tech/replan/pkg/policy"
	"github.com/Sumatoshi-tech/replan/pkg/toposort"
)

// ErrUnsortable indicates the commit graph admitted no topological
// order. NewGraph rejects cyclic histories, so hitting this means the
// graph was built by hand and skipped validation.
var ErrUnsortable = errors.New("commit graph admits no topological order")

// Kind is the action an Operation performs.
type Kind string

// Operation kinds. A squash operation may additionally carry a reworded
// message when its target commit was classified reword.
const (
	Pick   Kind = "pick"
	Reword Kind = "reword"
	Squash Kind = "squash"
)

// Operation is one step of a Plan. Commit is the primary (surviving)
// commit; Squashed lists the commits merged into it, in application
// order. Changes is the fully merged change set the operation applies.
type Operation struct {
	Kind     Kind
	Commit   history.ID
	Squashed []history.ID
	// Message is the replacement commit message for reword targets.
	Message string
	Changes history.ChangeSet
	// Index is the original log position of Commit; emitters use it to
	// interleave dropped entries.
	Index int
}

// References returns every original commit the operation covers,
// target first.
func (op *Operation) References() []history.ID {
	refs := make([]history.ID, 0, 1+len(op.Squashed))
	refs = append(refs, op.Commit)
	refs = append(refs, op.Squashed...)

	return refs
}

// Dropped records a commit elided from the plan.
type Dropped struct {
	ID    history.ID
	Index int
}

// Plan is the ordered rebase command sequence. Ops applied in order
// reproduce the original final tree whenever the classification drops
// only superseded commits; Verify checks exactly that.
type Plan struct {
	Ops     []Operation
	Drops   []Dropped
	BaseRef history.ID
}

// SurvivorIDs returns the primary commit of every operation, in plan
// order.
func (p *Plan) SurvivorIDs() []history.ID {
	ids := make([]history.ID, 0, len(p.Ops))
	for i := range p.Ops {
		ids = append(ids, p.Ops[i].Commit)
	}

	return ids
}

// Synthesize derives a Plan from a graph and a total classification.
// The classification must already be validated (Classify does this);
// unresolved squash chains surface as ErrInvalidSquashTarget here too.
// Synthesis is deterministic: identical inputs yield identical plans.
func Synthesize(graph *history.Graph, classification policy.Classification) (*Plan, error) {
	err := classification.Validate(graph)
	if err != nil {
		return nil, err
	}

	order, err := linearize(graph)
	if err != nil {
		return nil, err
	}

	groups, err := squashGroups(order, classification)
	if err != nil {
		return nil, err
	}

	result := &Plan{BaseRef: graph.Base()}

	for _, id := range order {
		decision := classification[id]

		switch decision.Action {
		case policy.ActionDrop:
			result.Drops = append(result.Drops, Dropped{ID: id, Index: graph.Index(id)})
		case policy.ActionSquashInto:
			// Emitted as part of its target's operation.
		case policy.ActionKeep, policy.ActionReword:
			op, opErr := buildOperation(graph, id, decision, groups[id])
			if opErr != nil {
				return nil, opErr
			}

			result.Ops = append(result.Ops, op)
		}
	}

	return result, nil
}

// linearize orders the graph parent-before-child, breaking ties by
// original log order. Nodes are added oldest-first so the toposort's
// insertion-order tie break is exactly the log order.
func linearize(graph *history.Graph) ([]history.ID, error) {
	sorter := toposort.NewGraph()

	for _, id := range graph.Order() {
		sorter.AddNode(string(id))
	}

	for _, commit := range graph.Commits() {
		for _, parent := range commit.Parents {
			if graph.Contains(parent) {
				sorter.AddEdge(string(parent), string(commit.ID))
			}
		}
	}

	sorted, ok := sorter.Toposort()
	if !ok {
		return nil, ErrUnsortable
	}

	order := make([]history.ID, len(sorted))
	for i, name := range sorted {
		order[i] = history.ID(name)
	}

	return order, nil
}

// squashGroups maps each surviving target to the commits squashed into
// it (transitively), in linearized order.
func squashGroups(order []history.ID, classification policy.Classification) (map[history.ID][]history.ID, error) {
	groups := make(map[history.ID][]history.ID)

	for _, id := range order {
		if classification[id].Action != policy.ActionSquashInto {
			continue
		}

		target, err := classification.ResolveTarget(id)
		if err != nil {
			return nil, err
		}

		groups[target] = append(groups[target], id)
	}

	return groups, nil
}

func buildOperation(
	graph *history.Graph,
	id history.ID,
	decision policy.Decision,
	squashed []history.ID,
) (Operation, error) {
	op := Operation{
		Kind:   Pick,
		Commit: id,
		Index:  graph.Index(id),
	}

	if decision.Action == policy.ActionReword {
		op.Kind = Reword
		op.Message = decision.Message
	}

	if len(squashed) > 0 {
		op.Kind = Squash
		op.Squashed = squashed
	}

	// Merge in original log order, not target-first: a commit squashed
	// forward into a later target must still lose to it on shared paths.
	group := make([]history.ID, 0, 1+len(squashed))
	group = append(group, id)
	group = append(group, squashed...)
	sort.Slice(group, func(i, j int) bool { return graph.Index(group[i]) < graph.Index(group[j]) })

	sets := make([]history.ChangeSet, 0, len(group))

	for _, member := range group {
		commit, err := graph.Get(member)
		if err != nil {
			return Operation{}, err
		}

		sets = append(sets, commit.Changes)
	}

	op.Changes = MergeChangeSets(sets...)

	return op, nil
}

// MergeChangeSets unions change sets in application order: for each
// path the last change wins; paths keep the order of their first
// appearance. The result is deterministic for identical inputs.
func MergeChangeSets(sets ...history.ChangeSet) history.ChangeSet {
	type slot struct {
		order  int
		change history.Change
	}

	byPath := make(map[string]slot)
	next := 0

	for _, set := range sets {
		for _, change := range set {
			existing, seen := byPath[change.Path]
			if seen {
				byPath[change.Path] = slot{order: existing.order, change: change}

				continue
			}

			byPath[change.Path] = slot{order: next, change: change}
			next++
		}
	}

	merged := make(history.ChangeSet, next)
	for _, entry := range byPath {
		merged[entry.order] = entry.change
	}

	return merged
}

// String renders a short plan summary.
func (p *Plan) String() string {
	return fmt.Sprintf("plan: %d operations, %d dropped", len(p.Ops), len(p.Drops))
}
