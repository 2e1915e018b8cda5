// Package gitlib loads commit histories from real git repositories
// using libgit2. It is a read-only consumer: nothing here ever writes
// to the source repository.
package gitlib

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/Sumatoshi-tech/replan/pkg/history"
)

// Sentinel errors for repository access.
var (
	// ErrSameRange indicates base and head resolve to the same commit.
	ErrSameRange = errors.New("base and head resolve to the same commit")
	// ErrBadRevspec indicates a revision spec that does not resolve to
	// a commit.
	ErrBadRevspec = errors.New("revision does not resolve to a commit")
)

// Repository wraps a libgit2 repository handle.
type Repository struct {
	repo *git2go.Repository
	path string
}

// Open opens the git repository at the given path.
func Open(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Path returns the repository path.
func (r *Repository) Path() string {
	return r.path
}

// Free releases the repository handle.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// ResolveCommit resolves a revision spec (branch, tag, SHA, HEAD~n) to
// a commit.
func (r *Repository) ResolveCommit(spec string) (*git2go.Commit, error) {
	obj, err := r.repo.RevparseSingle(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadRevspec, spec, err)
	}
	defer obj.Free()

	peeled, err := obj.Peel(git2go.ObjectCommit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a commit", ErrBadRevspec, spec)
	}

	commit, err := peeled.AsCommit()
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a commit", ErrBadRevspec, spec)
	}

	return commit, nil
}

// ResolveID resolves a revision spec to the commit id it names. Callers
// use it to pin moving refs before keying caches.
func (r *Repository) ResolveID(spec string) (history.ID, error) {
	commit, err := r.ResolveCommit(spec)
	if err != nil {
		return "", err
	}
	defer commit.Free()

	return history.ID(commit.Id().String()), nil
}

// diffTrees computes the libgit2 tree-to-tree diff. Either side may be
// nil (empty tree).
func (r *Repository) diffTrees(oldTree, newTree *git2go.Tree) (*git2go.Diff, error) {
	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("get diff options: %w", err)
	}

	diff, err := r.repo.DiffTreeToTree(oldTree, newTree, &opts)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	return diff, nil
}
