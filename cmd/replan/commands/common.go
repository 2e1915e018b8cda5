// Package commands implements CLI command handlers for replan.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/replan/pkg/config"
	"github.com/Sumatoshi-tech/replan/pkg/gitlib"
	"github.com/Sumatoshi-tech/replan/pkg/histcache"
	"github.com/Sumatoshi-tech/replan/pkg/history"
	"github.com/Sumatoshi-tech/replan/pkg/observability"
	"github.com/Sumatoshi-tech/replan/pkg/policy"
	"github.com/Sumatoshi-tech/replan/pkg/version"
)

// ErrNoPolicy indicates neither --policy nor a configured policy path.
var ErrNoPolicy = errors.New("no policy given: pass --policy or set planner.policy in the config")

// sourceFlags selects where the commit history comes from.
type sourceFlags struct {
	// LogPath reads the replan text log format instead of a repository;
	// "-" reads stdin.
	LogPath string
	// RepoPath is the git repository to walk.
	RepoPath string
	// Base is the exclusive lower bound of the range.
	Base string
	// Head is the inclusive upper bound; empty means HEAD.
	Head string
	// Limit caps loaded commits; zero falls back to the config.
	Limit int
	// NoCache bypasses the on-disk history cache.
	NoCache bool
}

func initObservability(cfg *config.Config, mode observability.AppMode) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.LogJSON = cfg.Logging.Format == "json"
	obsCfg.LogLevel = logLevel(cfg.Logging.Level)

	if cfg.Observability.Enabled {
		obsCfg.OTLPEndpoint = cfg.Observability.Endpoint
		obsCfg.OTLPInsecure = cfg.Observability.Insecure
	}

	// Standard OTel env vars win over the config file.
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		obsCfg.OTLPEndpoint = endpoint
		obsCfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}

	return observability.Init(obsCfg)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadGraph builds the commit graph from a text log or a repository,
// consulting the on-disk cache for repository loads.
func loadGraph(
	ctx context.Context,
	src sourceFlags,
	cfg *config.Config,
	logger *slog.Logger,
) (*history.Graph, error) {
	if src.LogPath != "" {
		return loadLogGraph(src.LogPath)
	}

	limit := src.Limit
	if limit == 0 {
		limit = cfg.Planner.Limit
	}

	repoPath, err := filepath.Abs(src.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}

	repo, err := gitlib.Open(repoPath)
	if err != nil {
		return nil, err
	}
	defer repo.Free()

	opts := gitlib.LoadOptions{Base: src.Base, Head: src.Head, Limit: limit}

	if src.NoCache || !cfg.Cache.Enabled {
		return repo.LoadHistory(ctx, opts)
	}

	return loadCachedGraph(ctx, repo, opts, cfg.Cache.Directory, limit, logger)
}

func loadCachedGraph(
	ctx context.Context,
	repo *gitlib.Repository,
	opts gitlib.LoadOptions,
	cacheDir string,
	limit int,
	logger *slog.Logger,
) (*history.Graph, error) {
	headSpec := opts.Head
	if headSpec == "" {
		headSpec = "HEAD"
	}

	headID, err := repo.ResolveID(headSpec)
	if err != nil {
		return nil, err
	}

	cache, err := histcache.New(cacheDir)
	if err != nil {
		return nil, err
	}

	// The limit participates in the key: a truncated walk is a different
	// history than the full one.
	key := histcache.Key(repo.Path(), opts.Base, fmt.Sprintf("%s@%d", headID, limit))

	graph, err := cache.Get(key)
	if err == nil {
		logger.DebugContext(ctx, "history cache hit", "key", key, "commits", graph.Len())

		return graph, nil
	}

	if !errors.Is(err, histcache.ErrMiss) {
		return nil, err
	}

	graph, err = repo.LoadHistory(ctx, opts)
	if err != nil {
		return nil, err
	}

	putErr := cache.Put(key, graph)
	if putErr != nil {
		logger.WarnContext(ctx, "history cache write failed", "error", putErr)
	}

	return graph, nil
}

func loadLogGraph(path string) (*history.Graph, error) {
	var reader io.Reader

	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open history log: %w", err)
		}
		defer file.Close()

		reader = file
	}

	graph, err := history.ParseLog(reader)
	if err != nil {
		return nil, err
	}

	return graph, nil
}

// loadPolicy resolves the policy path from the flag or the config.
func loadPolicy(flagPath string, cfg *config.Config) (*policy.Policy, error) {
	path := strings.TrimSpace(flagPath)
	if path == "" {
		path = cfg.Planner.Policy
	}

	if path == "" {
		return nil, ErrNoPolicy
	}

	return policy.Load(path)
}
