package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/replan/pkg/history"
	"github.com/Sumatoshi-tech/replan/pkg/plan"
)

// Options tunes verification.
type Options struct {
	// ConflictThreshold is the number of non-identical overlapping
	// writes tolerated per squash group before warnings are emitted.
	// Zero warns on every real overlap.
	ConflictThreshold int
}

// PathDiff is one diverging path between the original and rebased final
// trees. Empty hashes mean the path is absent on that side.
type PathDiff struct {
	Path     string
	Original string
	Rebased  string
}

// Conflict is a squash-group overlap: a later member overwrote an
// earlier member's non-identical edit to the same path. These are
// warnings, not failures; identical content never conflicts.
type Conflict struct {
	Target history.ID
	Loser  history.ID
	Winner history.ID
	Path   string
}

func (c Conflict) String() string {
	return fmt.Sprintf("squash into %s: %s overwrites %s at %s", c.Target, c.Winner, c.Loser, c.Path)
}

// Report is the outcome of a verification run.
type Report struct {
	Diffs    []PathDiff
	Warnings []Conflict

	originalListing string
	rebasedListing  string
}

// OK reports whether the rebased tree matches the original exactly.
func (r *Report) OK() bool {
	return len(r.Diffs) == 0
}

// Err returns a FailureError when the trees diverge, nil otherwise.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}

	return &FailureError{
		Diffs:    r.Diffs,
		original: r.originalListing,
		rebased:  r.rebasedListing,
	}
}

// FailureError is a verification failure carrying the full divergence.
type FailureError struct {
	Diffs []PathDiff

	original string
	rebased  string
}

// Error lists every diverging path.
func (e *FailureError) Error() string {
	paths := make([]string, 0, len(e.Diffs))
	for _, diff := range e.Diffs {
		paths = append(paths, diff.Path)
	}

	return fmt.Sprintf("verification failed: %d diverging path(s): %s", len(e.Diffs), strings.Join(paths, ", "))
}

// DiffText renders the divergence between the two tree listings as a
// patch.
func (e *FailureError) DiffText() string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(e.original, e.rebased)

	return dmp.PatchToText(patches)
}

// Run replays the original history and the plan, compares the final
// trees, and collects squash conflict warnings. A plan is valid output
// only when the returned report is OK.
func Run(graph *history.Graph, p *plan.Plan, opts Options) *Report {
	original := NewTreeSnapshot()
	for _, commit := range graph.Commits() {
		original.Apply(commit.Changes)
	}

	rebased := NewTreeSnapshot()
	for i := range p.Ops {
		rebased.Apply(p.Ops[i].Changes)
	}

	report := &Report{
		Diffs:           compareTrees(original, rebased),
		originalListing: original.Listing(),
		rebasedListing:  rebased.Listing(),
	}

	for i := range p.Ops {
		report.Warnings = append(report.Warnings, squashConflicts(graph, &p.Ops[i], opts.ConflictThreshold)...)
	}

	return report
}

// compareTrees returns the per-path divergence, sorted by path.
func compareTrees(original, rebased TreeSnapshot) []PathDiff {
	paths := make(map[string]struct{}, len(original)+len(rebased))
	for path := range original {
		paths[path] = struct{}{}
	}

	for path := range rebased {
		paths[path] = struct{}{}
	}

	diffs := make([]PathDiff, 0)

	for path := range paths {
		origHash := original[path]

		rebHash := rebased[path]
		if origHash != rebHash {
			diffs = append(diffs, PathDiff{Path: path, Original: origHash, Rebased: rebHash})
		}
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })

	return diffs
}

// squashConflicts detects non-identical overlapping writes inside one
// squash group. Overlaps at or below the threshold are tolerated as
// intentional fixup behavior.
func squashConflicts(graph *history.Graph, op *plan.Operation, threshold int) []Conflict {
	if len(op.Squashed) == 0 {
		return nil
	}

	type lastWrite struct {
		author history.ID
		hash   string
		action history.ChangeAction
	}

	writes := make(map[string]lastWrite)
	conflicts := make([]Conflict, 0)

	// Walk the group in original log order so winner/loser attribution
	// matches the merge semantics, even for forward squashes.
	members := op.References()
	sort.Slice(members, func(i, j int) bool { return graph.Index(members[i]) < graph.Index(members[j]) })

	for _, member := range members {
		commit, err := graph.Get(member)
		if err != nil {
			// Plan referencing outside the graph is caught by tree
			// comparison; skip for warning purposes.
			continue
		}

		for _, change := range commit.Changes {
			prev, seen := writes[change.Path]
			if seen && !sameEffect(prev.hash, prev.action, change) {
				conflicts = append(conflicts, Conflict{
					Target: op.Commit,
					Loser:  prev.author,
					Winner: member,
					Path:   change.Path,
				})
			}

			writes[change.Path] = lastWrite{author: member, hash: change.Hash, action: change.Action}
		}
	}

	if len(conflicts) <= threshold {
		return nil
	}

	return conflicts
}

func sameEffect(prevHash string, prevAction history.ChangeAction, change history.Change) bool {
	return prevAction == change.Action && prevHash == change.Hash
}
