// Package histcache persists loaded commit histories on disk so repeated
// planning runs against the same range skip the libgit2 walk. Entries are
// gob-encoded and LZ4-compressed.
package histcache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/replan/pkg/history"
)

// ErrMiss indicates the requested entry is not cached.
var ErrMiss = errors.New("history cache miss")

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// Cache is an on-disk history cache rooted at a directory.
type Cache struct {
	dir string
}

// New opens (creating if needed) a cache rooted at dir.
func New(dir string) (*Cache, error) {
	err := os.MkdirAll(dir, dirMode)
	if err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &Cache{dir: dir}, nil
}

// Key derives the cache key for a repository range. Head must already be
// resolved to a commit id by the caller, otherwise a moving ref would
// serve stale history.
func Key(repoPath, base, head string) string {
	sum := sha256.Sum256([]byte(repoPath + "\x00" + base + "\x00" + head))

	return hex.EncodeToString(sum[:])
}

// entry is the serialized cache payload.
type entry struct {
	Commits []*history.Commit
	Base    history.ID
}

// Get loads a cached graph. Returns ErrMiss when absent; corrupt entries
// are treated as misses after removal.
func (c *Cache) Get(key string) (*history.Graph, error) {
	file, err := os.Open(c.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMiss
		}

		return nil, fmt.Errorf("open cache entry: %w", err)
	}
	defer file.Close()

	var payload entry

	decodeErr := gob.NewDecoder(lz4.NewReader(file)).Decode(&payload)
	if decodeErr != nil {
		_ = os.Remove(c.path(key))

		return nil, ErrMiss
	}

	graph, graphErr := history.NewGraph(payload.Commits, payload.Base)
	if graphErr != nil {
		_ = os.Remove(c.path(key))

		return nil, ErrMiss
	}

	return graph, nil
}

// Put stores a graph under the key. The write is atomic: a temp file is
// renamed into place so readers never observe a partial entry.
func (c *Cache) Put(key string, graph *history.Graph) error {
	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}

	tmpName := tmp.Name()

	writer := lz4.NewWriter(tmp)

	payload := entry{Commits: graph.Commits(), Base: graph.Base()}

	encodeErr := gob.NewEncoder(writer).Encode(&payload)
	if encodeErr == nil {
		encodeErr = writer.Close()
	}

	closeErr := tmp.Close()

	if encodeErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("write cache entry: %w", errors.Join(encodeErr, closeErr))
	}

	chmodErr := os.Chmod(tmpName, fileMode)
	if chmodErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("chmod cache entry: %w", chmodErr)
	}

	renameErr := os.Rename(tmpName, c.path(key))
	if renameErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("publish cache entry: %w", renameErr)
	}

	return nil
}

// Remove drops a cached entry. Removing an absent entry is not an error.
func (c *Cache) Remove(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache entry: %w", err)
	}

	return nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".lz4")
}
