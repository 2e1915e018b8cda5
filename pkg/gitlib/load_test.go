package gitlib_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/replan/pkg/gitlib"
	"github.com/Sumatoshi-tech/replan/pkg/history"
)

// testRepo wraps a scratch repository for integration testing.
type testRepo struct {
	t      *testing.T
	path   string
	native *git2go.Repository
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(repo.Free)

	return &testRepo{t: t, path: dir, native: repo}
}

// createFile creates a file in the working directory.
func (tr *testRepo) createFile(name, content string) {
	tr.t.Helper()

	path := filepath.Join(tr.path, name)
	dir := filepath.Dir(path)

	if dir != tr.path {
		err := os.MkdirAll(dir, 0o755)
		require.NoError(tr.t, err)
	}

	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(tr.t, err)
}

// deleteFile removes a file from the working directory.
func (tr *testRepo) deleteFile(name string) {
	tr.t.Helper()

	err := os.Remove(filepath.Join(tr.path, name))
	require.NoError(tr.t, err)
}

// commit stages all files and creates a commit, returning its hex id.
func (tr *testRepo) commit(message string) history.ID {
	tr.t.Helper()

	index, err := tr.native.Index()
	require.NoError(tr.t, err)

	defer index.Free()

	err = index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil)
	require.NoError(tr.t, err)

	err = index.Write()
	require.NoError(tr.t, err)

	treeID, err := index.WriteTree()
	require.NoError(tr.t, err)

	tree, err := tr.native.LookupTree(treeID)
	require.NoError(tr.t, err)

	defer tree.Free()

	sig := &git2go.Signature{
		Name:  "Test User",
		Email: "test@example.com",
		When:  time.Now(),
	}

	var parents []*git2go.Commit

	head, err := tr.native.Head()
	if err == nil {
		headCommit, lookupErr := tr.native.LookupCommit(head.Target())
		require.NoError(tr.t, lookupErr)

		parents = append(parents, headCommit)

		head.Free()
	}

	oid, err := tr.native.CreateCommit("HEAD", sig, sig, message, tree, parents...)
	require.NoError(tr.t, err)

	for _, parent := range parents {
		parent.Free()
	}

	return history.ID(oid.String())
}

func TestOpenMissingRepository(t *testing.T) {
	t.Parallel()

	_, err := gitlib.Open(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadFullHistory(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	repo.createFile("base.go", "package base\n")
	first := repo.commit("Add base")

	repo.createFile("feature.go", "package feature\n")
	second := repo.commit("Add feature")

	graph, err := gitlib.Load(context.Background(), repo.path, gitlib.LoadOptions{})
	require.NoError(t, err)

	require.Equal(t, 2, graph.Len())
	assert.Equal(t, []history.ID{first, second}, graph.Order())
	assert.Empty(t, graph.Base())

	root, err := graph.Get(first)
	require.NoError(t, err)
	assert.Equal(t, "Add base", root.Message)
	assert.Equal(t, "Test User", root.Author.Name)
	assert.Empty(t, root.Parents)
	require.Len(t, root.Changes, 1)
	assert.Equal(t, history.Write, root.Changes[0].Action)
	assert.Equal(t, "base.go", root.Changes[0].Path)
	assert.NotEmpty(t, root.Changes[0].Hash)

	tip, err := graph.Get(second)
	require.NoError(t, err)
	assert.Equal(t, []history.ID{first}, tip.Parents)
	assert.Equal(t, []string{"feature.go"}, tip.Changes.Paths())
}

func TestLoadRange(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	repo.createFile("base.go", "package base\n")
	base := repo.commit("Add base")

	repo.createFile("one.go", "package one\n")
	one := repo.commit("Add one")

	repo.createFile("two.go", "package two\n")
	two := repo.commit("Add two")

	graph, err := gitlib.Load(context.Background(), repo.path, gitlib.LoadOptions{
		Base: string(base),
		Head: string(two),
	})
	require.NoError(t, err)

	assert.Equal(t, []history.ID{one, two}, graph.Order())
	assert.Equal(t, base, graph.Base())
}

func TestLoadSameRange(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	repo.createFile("base.go", "package base\n")
	only := repo.commit("Add base")

	_, err := gitlib.Load(context.Background(), repo.path, gitlib.LoadOptions{
		Base: string(only),
		Head: string(only),
	})
	assert.ErrorIs(t, err, gitlib.ErrSameRange)
}

func TestLoadBadRevspec(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	repo.createFile("base.go", "package base\n")
	repo.commit("Add base")

	_, err := gitlib.Load(context.Background(), repo.path, gitlib.LoadOptions{Head: "no-such-ref"})
	assert.ErrorIs(t, err, gitlib.ErrBadRevspec)
}

func TestLoadDeletionsAndEdits(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	repo.createFile("keep.go", "package keep\n")
	repo.createFile("gone.txt", "scratch\n")
	repo.commit("Add files")

	repo.createFile("keep.go", "package keep // edited\n")
	repo.deleteFile("gone.txt")
	tip := repo.commit("Edit and delete")

	graph, err := gitlib.Load(context.Background(), repo.path, gitlib.LoadOptions{})
	require.NoError(t, err)

	commit, err := graph.Get(tip)
	require.NoError(t, err)

	byPath := make(map[string]history.Change, len(commit.Changes))
	for _, change := range commit.Changes {
		byPath[change.Path] = change
	}

	require.Len(t, byPath, 2)
	assert.Equal(t, history.Write, byPath["keep.go"].Action)
	assert.NotEmpty(t, byPath["keep.go"].Hash)
	assert.Equal(t, history.Delete, byPath["gone.txt"].Action)
	assert.Empty(t, byPath["gone.txt"].Hash)
}

func TestLoadCancelledContext(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	repo.createFile("base.go", "package base\n")
	repo.commit("Add base")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gitlib.Load(ctx, repo.path, gitlib.LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadLimit(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	repo.createFile("a.go", "package a\n")
	first := repo.commit("Add a")

	repo.createFile("b.go", "package b\n")
	repo.commit("Add b")

	graph, err := gitlib.Load(context.Background(), repo.path, gitlib.LoadOptions{Limit: 1})
	require.NoError(t, err)

	assert.Equal(t, []history.ID{first}, graph.Order())
}
