// Package verify replays a rebase plan against the original history and
// reports any divergence in the final tree, plus conflict warnings for
// squash groups that silently overwrite each other.
package verify

import (
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/replan/pkg/history"
)

// TreeSnapshot is the working-tree state after applying a commit
// prefix: path to content hash. Snapshots are scratch state; they are
// built, compared and discarded within one verification.
type TreeSnapshot map[string]string

// NewTreeSnapshot returns an empty snapshot.
func NewTreeSnapshot() TreeSnapshot {
	return make(TreeSnapshot)
}

// Apply mutates the snapshot with one change set, in order.
func (ts TreeSnapshot) Apply(changes history.ChangeSet) {
	for _, change := range changes {
		switch change.Action {
		case history.Write:
			ts[change.Path] = change.Hash
		case history.Delete:
			delete(ts, change.Path)
		}
	}
}

// Listing serializes the snapshot as sorted "path hash" lines. Two
// snapshots are equal exactly when their listings are equal.
func (ts TreeSnapshot) Listing() string {
	paths := make([]string, 0, len(ts))
	for path := range ts {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	var sb strings.Builder

	for _, path := range paths {
		sb.WriteString(path)
		sb.WriteByte(' ')
		sb.WriteString(ts[path])
		sb.WriteByte('\n')
	}

	return sb.String()
}
