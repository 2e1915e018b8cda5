// Package history models a linear commit history as an immutable DAG of
// commits with per-commit change sets, loaded either from the replan text
// log format or from a real repository.
package history

import (
	"errors"
	"time"
)

// Sentinel errors shared by all history sources.
var (
	// ErrParse indicates unrecognized record syntax in a commit log.
	ErrParse = errors.New("malformed commit log record")
	// ErrMalformedHistory indicates a graph invariant violation: a duplicate
	// commit identifier, a reference to a nonexistent parent, or a cycle.
	ErrMalformedHistory = errors.New("malformed history")
	// ErrMergeUnsupported indicates a commit with more than one parent.
	// Rebase planning assumes a linear history.
	ErrMergeUnsupported = errors.New("merge commits are not supported")
	// ErrUnknownCommit indicates a lookup for an identifier not in the graph.
	ErrUnknownCommit = errors.New("unknown commit")
	// ErrEmptyHistory indicates a history with no commits.
	ErrEmptyHistory = errors.New("empty history")
)

// ID is an opaque commit identifier. Hex SHA when loaded from a repository.
type ID string

// ChangeAction is the kind of tree mutation a Change performs.
type ChangeAction int

const (
	// Write sets the content of a path (covers both adds and edits).
	Write ChangeAction = iota
	// Delete removes a path from the tree.
	Delete
)

// Change is a single file mutation relative to the parent commit.
// Hash identifies the new blob content; it is empty for deletions.
type Change struct {
	Action ChangeAction
	Path   string
	Hash   string
}

// ChangeSet is the ordered list of mutations a commit applies.
type ChangeSet []Change

// Paths returns the set of paths touched by the change set.
func (cs ChangeSet) Paths() []string {
	paths := make([]string, 0, len(cs))
	for _, change := range cs {
		paths = append(paths, change.Path)
	}

	return paths
}

// Signature identifies a commit author.
type Signature struct {
	Name  string
	Email string
}

// Commit is one atomic change in the history. Commits are immutable once
// the graph is built.
type Commit struct {
	ID      ID
	Parents []ID
	Author  Signature
	Message string
	When    time.Time
	Changes ChangeSet
}

// Subject returns the first line of the commit message.
func (c *Commit) Subject() string {
	for i := range len(c.Message) {
		if c.Message[i] == '\n' {
			return c.Message[:i]
		}
	}

	return c.Message
}
