package policy_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/replan/pkg/history"
	"github.com/Sumatoshi-tech/replan/pkg/policy"
)

// chain builds a linear graph from commit specs, oldest first.
func chain(t *testing.T, commits ...*history.Commit) *history.Graph {
	t.Helper()

	var parent []history.ID

	for _, commit := range commits {
		commit.Parents = parent
		parent = []history.ID{commit.ID}
	}

	graph, err := history.NewGraph(commits, "")
	require.NoError(t, err)

	return graph
}

func write(path, hash string) history.Change {
	return history.Change{Action: history.Write, Path: path, Hash: hash}
}

func TestClassifyFirstMatchWinsAndDefaultKeep(t *testing.T) {
	t.Parallel()

	graph := chain(t,
		&history.Commit{ID: "a", Message: "Add core", Changes: history.ChangeSet{write("core.go", "h1")}},
		&history.Commit{ID: "b", Message: "wip experiment", Changes: history.ChangeSet{write("experiments/x.go", "h2")}},
		&history.Commit{ID: "c", Message: "wip experiment", Changes: history.ChangeSet{write("core.go", "h3")}},
	)

	pol := &policy.Policy{Rules: []policy.Rule{
		{Name: "drop-exp", Match: policy.Match{Paths: []string{"experiments/**"}}, Action: policy.ActionDrop},
		{Name: "keep-wip", Match: policy.Match{Message: "^wip"}, Action: policy.ActionKeep},
	}}

	classification, err := pol.Classify(graph)
	require.NoError(t, err)
	require.NoError(t, classification.Validate(graph))

	// b matches the path rule first even though the message rule also
	// matches; c only matches the message rule; a matches nothing.
	assert.Equal(t, policy.ActionKeep, classification["a"].Action)
	assert.Empty(t, classification["a"].Rule)
	assert.Equal(t, policy.ActionDrop, classification["b"].Action)
	assert.Equal(t, "drop-exp", classification["b"].Rule)
	assert.Equal(t, policy.ActionKeep, classification["c"].Action)
	assert.Equal(t, "keep-wip", classification["c"].Rule)
}

func TestClassifyTotality(t *testing.T) {
	t.Parallel()

	commits := make([]*history.Commit, 0, 50)
	for i := range 50 {
		commits = append(commits, &history.Commit{
			ID:      history.ID(fmt.Sprintf("c%02d", i)),
			Message: "msg",
		})
	}

	graph := chain(t, commits...)

	classification, err := (&policy.Policy{}).Classify(graph)
	require.NoError(t, err)

	assert.Len(t, classification, graph.Len())
	assert.NoError(t, classification.Validate(graph))
}

func TestClassifySquashIntoPrevious(t *testing.T) {
	t.Parallel()

	graph := chain(t,
		&history.Commit{ID: "a", Message: "Add parser"},
		&history.Commit{ID: "b", Message: "fixup parser"},
		&history.Commit{ID: "c", Message: "typo"},
	)

	pol := &policy.Policy{Rules: []policy.Rule{
		{Match: policy.Match{Message: "(?i)^(fixup|typo)"}, Action: policy.ActionSquashIntoPrevious},
	}}

	classification, err := pol.Classify(graph)
	require.NoError(t, err)

	// Both fixups chain back to a: b directly, c through the nearest
	// surviving commit which is still a.
	assert.Equal(t, history.ID("a"), classification["b"].Target)
	assert.Equal(t, history.ID("a"), classification["c"].Target)

	target, err := classification.ResolveTarget("c")
	require.NoError(t, err)
	assert.Equal(t, history.ID("a"), target)
}

func TestClassifySquashIntoPreviousWithoutSurvivor(t *testing.T) {
	t.Parallel()

	graph := chain(t, &history.Commit{ID: "a", Message: "fixup nothing"})

	pol := &policy.Policy{Rules: []policy.Rule{
		{Match: policy.Match{Message: "^fixup"}, Action: policy.ActionSquashIntoPrevious},
	}}

	_, err := pol.Classify(graph)
	assert.ErrorIs(t, err, policy.ErrInvalidSquashTarget)
}

func TestClassifyExplicitSquashTarget(t *testing.T) {
	t.Parallel()

	graph := chain(t,
		&history.Commit{ID: "a", Message: "Add engine"},
		&history.Commit{ID: "b", Message: "polish"},
	)

	pol := &policy.Policy{Rules: []policy.Rule{
		{Match: policy.Match{Message: "^polish"}, Action: policy.ActionSquashInto, Target: "a"},
	}}

	classification, err := pol.Classify(graph)
	require.NoError(t, err)
	assert.Equal(t, history.ID("a"), classification["b"].Target)
}

func TestClassifySquashTargetOutsideGraph(t *testing.T) {
	t.Parallel()

	graph := chain(t, &history.Commit{ID: "a", Message: "polish"})

	pol := &policy.Policy{Rules: []policy.Rule{
		{Match: policy.Match{Message: "^polish"}, Action: policy.ActionSquashInto, Target: "ghost"},
	}}

	_, err := pol.Classify(graph)
	assert.ErrorIs(t, err, policy.ErrInvalidSquashTarget)
}

func TestClassifySquashChainIntoDrop(t *testing.T) {
	t.Parallel()

	graph := chain(t,
		&history.Commit{ID: "a", Message: "scratch work"},
		&history.Commit{ID: "b", Message: "polish scratch"},
	)

	pol := &policy.Policy{Rules: []policy.Rule{
		{Match: policy.Match{Message: "^scratch"}, Action: policy.ActionDrop},
		{Match: policy.Match{Message: "^polish"}, Action: policy.ActionSquashInto, Target: "a"},
	}}

	_, err := pol.Classify(graph)
	assert.ErrorIs(t, err, policy.ErrInvalidSquashTarget)
}

func TestResolveTargetCycle(t *testing.T) {
	t.Parallel()

	classification := policy.Classification{
		"a": {Action: policy.ActionSquashInto, Target: "b"},
		"b": {Action: policy.ActionSquashInto, Target: "a"},
	}

	_, err := classification.ResolveTarget("a")
	assert.ErrorIs(t, err, policy.ErrSquashCycle)
}

func TestClassifyLanguages(t *testing.T) {
	t.Parallel()

	graph := chain(t,
		&history.Commit{ID: "a", Message: "docs", Changes: history.ChangeSet{write("README.md", "h1")}},
		&history.Commit{ID: "b", Message: "code", Changes: history.ChangeSet{write("main.go", "h2")}},
		&history.Commit{ID: "c", Message: "mixed", Changes: history.ChangeSet{
			write("README.md", "h3"),
			write("main.go", "h4"),
		}},
	)

	pol := &policy.Policy{Rules: []policy.Rule{
		{Name: "drop-docs", Match: policy.Match{Languages: []string{"Markdown"}}, Action: policy.ActionDrop},
	}}

	classification, err := pol.Classify(graph)
	require.NoError(t, err)

	want := policy.Classification{
		"a": {Action: policy.ActionDrop, Rule: "drop-docs"},
		"b": {Action: policy.ActionKeep},
		"c": {Action: policy.ActionKeep},
	}

	if diff := cmp.Diff(want, classification); diff != "" {
		t.Errorf("classification mismatch (-want +got):\n%s", diff)
	}
}
