package gitlib

import (
	"context"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/Sumatoshi-tech/replan/pkg/history"
)

// LoadOptions selects the commit range to load.
type LoadOptions struct {
	// Base is the exclusive lower bound of the range (the rebase base).
	// Empty loads the full history below Head.
	Base string
	// Head is the inclusive upper bound. Empty means HEAD.
	Head string
	// Limit caps the number of loaded commits; zero means unlimited.
	Limit int
}

// Load walks base..head oldest-first and builds a history graph with
// per-commit change sets (path and new blob hash per write, deletions
// marked explicitly). Renames surface as a delete plus a write.
func Load(ctx context.Context, repoPath string, opts LoadOptions) (*history.Graph, error) {
	repo, err := Open(repoPath)
	if err != nil {
		return nil, err
	}
	defer repo.Free()

	return repo.LoadHistory(ctx, opts)
}

// LoadHistory is Load on an already open repository.
func (r *Repository) LoadHistory(ctx context.Context, opts LoadOptions) (*history.Graph, error) {
	headSpec := opts.Head
	if headSpec == "" {
		headSpec = "HEAD"
	}

	head, err := r.ResolveCommit(headSpec)
	if err != nil {
		return nil, err
	}
	defer head.Free()

	var baseID history.ID

	walk, err := r.repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}
	defer walk.Free()

	walk.Sorting(git2go.SortTopological | git2go.SortReverse)

	err = walk.Push(head.Id())
	if err != nil {
		return nil, fmt.Errorf("push head: %w", err)
	}

	if opts.Base != "" {
		base, baseErr := r.ResolveCommit(opts.Base)
		if baseErr != nil {
			return nil, baseErr
		}

		if base.Id().Equal(head.Id()) {
			base.Free()

			return nil, fmt.Errorf("%w: %s", ErrSameRange, head.Id().String())
		}

		baseID = history.ID(base.Id().String())

		err = walk.Hide(base.Id())

		base.Free()

		if err != nil {
			return nil, fmt.Errorf("hide base: %w", err)
		}
	}

	commits, err := r.collectCommits(ctx, walk, opts.Limit)
	if err != nil {
		return nil, err
	}

	return history.NewGraph(commits, baseID)
}

func (r *Repository) collectCommits(ctx context.Context, walk *git2go.RevWalk, limit int) ([]*history.Commit, error) {
	commits := make([]*history.Commit, 0)

	oid := new(git2go.Oid)

	for {
		err := ctx.Err()
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}

		err = walk.Next(oid)
		if err != nil {
			if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
				break
			}

			return nil, fmt.Errorf("revwalk next: %w", err)
		}

		commit, err := r.convertCommit(oid)
		if err != nil {
			return nil, err
		}

		commits = append(commits, commit)

		if limit > 0 && len(commits) >= limit {
			break
		}
	}

	return commits, nil
}

// convertCommit translates one libgit2 commit into the history model.
func (r *Repository) convertCommit(oid *git2go.Oid) (*history.Commit, error) {
	raw, err := r.repo.LookupCommit(oid)
	if err != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", oid.String(), err)
	}
	defer raw.Free()

	sig := raw.Author()

	commit := &history.Commit{
		ID:      history.ID(oid.String()),
		Author:  history.Signature{Name: sig.Name, Email: sig.Email},
		Message: raw.Message(),
		When:    sig.When,
	}

	for i := range raw.ParentCount() {
		commit.Parents = append(commit.Parents, history.ID(raw.ParentId(i).String()))
	}

	commit.Changes, err = r.commitChanges(raw)
	if err != nil {
		return nil, fmt.Errorf("changes for %s: %w", oid.String(), err)
	}

	return commit, nil
}

// commitChanges diffs the commit against its first parent; parentless
// commits yield their full tree as writes.
func (r *Repository) commitChanges(raw *git2go.Commit) (history.ChangeSet, error) {
	newTree, err := raw.Tree()
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	defer newTree.Free()

	var oldTree *git2go.Tree

	if raw.ParentCount() > 0 {
		parent := raw.Parent(0)
		defer parent.Free()

		oldTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("get parent tree: %w", err)
		}
		defer oldTree.Free()
	}

	diff, err := r.diffTrees(oldTree, newTree)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = diff.Free()
	}()

	return changesFromDiff(diff)
}

func changesFromDiff(diff *git2go.Diff) (history.ChangeSet, error) {
	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, fmt.Errorf("get num deltas: %w", err)
	}

	changes := make(history.ChangeSet, 0, numDeltas)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			return nil, fmt.Errorf("get delta %d: %w", i, deltaErr)
		}

		changes = append(changes, deltaChanges(delta)...)
	}

	return changes, nil
}

// deltaChanges maps one libgit2 delta onto history changes.
func deltaChanges(delta git2go.DiffDelta) history.ChangeSet {
	switch delta.Status {
	case git2go.DeltaAdded:
		return history.ChangeSet{{
			Action: history.Write,
			Path:   delta.NewFile.Path,
			Hash:   delta.NewFile.Oid.String(),
		}}
	case git2go.DeltaDeleted:
		return history.ChangeSet{{
			Action: history.Delete,
			Path:   delta.OldFile.Path,
		}}
	case git2go.DeltaModified, git2go.DeltaRenamed, git2go.DeltaCopied:
		changes := make(history.ChangeSet, 0, 2)

		// A rename removes the old path; a copy leaves it in place.
		if delta.Status == git2go.DeltaRenamed && delta.OldFile.Path != delta.NewFile.Path {
			changes = append(changes, history.Change{Action: history.Delete, Path: delta.OldFile.Path})
		}

		return append(changes, history.Change{
			Action: history.Write,
			Path:   delta.NewFile.Path,
			Hash:   delta.NewFile.Oid.String(),
		})
	default:
		// Unmodified, ignored, untracked and friends carry no tree
		// mutation worth replaying.
		return nil
	}
}
