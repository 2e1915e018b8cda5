// Package pipeline drives the rebase planning stages: classify,
// synthesize, verify. Verification failures trigger a bounded
// reclassification loop before the run is declared failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/replan/pkg/history"
	"github.com/Sumatoshi-tech/replan/pkg/plan"
	"github.com/Sumatoshi-tech/replan/pkg/policy"
	"github.com/Sumatoshi-tech/replan/pkg/verify"
)

// State is the pipeline position, advanced strictly in order.
type State string

// Pipeline states. VERIFIED(fail) transitions back to StateClassified
// until the retry budget is exhausted.
const (
	StateLoaded      State = "LOADED"
	StateClassified  State = "CLASSIFIED"
	StateSynthesized State = "SYNTHESIZED"
	StateVerified    State = "VERIFIED"
)

// ErrRetriesExhausted wraps the final verification failure after the
// bounded reclassification loop gave up.
var ErrRetriesExhausted = errors.New("verification retries exhausted")

// Options configures a run.
type Options struct {
	// MaxRetries bounds the reclassification loop after verification
	// failures. Zero means verify once, never retry.
	MaxRetries int
	// ConflictThreshold is passed through to the verifier.
	ConflictThreshold int
	// Logger receives stage transitions. Nil uses slog.Default.
	Logger *slog.Logger
}

// Result is a successful run: the verified plan plus the verification
// report (which may still carry squash conflict warnings) and the
// classification that produced it.
type Result struct {
	Plan           *plan.Plan
	Report         *verify.Report
	Classification policy.Classification
	// Repaired lists commits flipped from drop to keep by the
	// auto-repair loop, in repair order.
	Repaired []history.ID
	// Attempts counts verification rounds, including the successful one.
	Attempts int
}

// Run executes the pipeline on an already loaded graph. The graph is
// never mutated; the classification is revised between attempts by
// flipping dropped commits that touch diverging paths back to keep.
func Run(ctx context.Context, graph *history.Graph, pol *policy.Policy, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "pipeline state", "state", StateLoaded, "commits", graph.Len())

	classification, err := pol.Classify(graph)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	logger.InfoContext(ctx, "pipeline state", "state", StateClassified)

	result := &Result{Classification: classification}

	for attempt := 0; ; attempt++ {
		result.Attempts = attempt + 1

		rebasePlan, synthErr := plan.Synthesize(graph, classification)
		if synthErr != nil {
			return nil, fmt.Errorf("synthesize: %w", synthErr)
		}

		logger.InfoContext(ctx, "pipeline state", "state", StateSynthesized,
			"attempt", attempt+1, "operations", len(rebasePlan.Ops), "drops", len(rebasePlan.Drops))

		report := verify.Run(graph, rebasePlan, verify.Options{ConflictThreshold: opts.ConflictThreshold})

		if report.OK() {
			logger.InfoContext(ctx, "pipeline state", "state", StateVerified,
				"pass", true, "warnings", len(report.Warnings))

			result.Plan = rebasePlan
			result.Report = report

			return result, nil
		}

		logger.WarnContext(ctx, "pipeline state", "state", StateVerified,
			"pass", false, "diverging_paths", len(report.Diffs))

		if attempt >= opts.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrRetriesExhausted, attempt+1, report.Err())
		}

		repaired := repairClassification(graph, classification, report)
		if len(repaired) == 0 {
			// Nothing left to flip; retrying cannot converge.
			return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrRetriesExhausted, attempt+1, report.Err())
		}

		result.Repaired = append(result.Repaired, repaired...)

		logger.InfoContext(ctx, "pipeline state", "state", StateClassified,
			"repaired", len(repaired))
	}
}

// repairClassification flips dropped commits touching diverging paths
// back to keep, returning the flipped identifiers in log order.
func repairClassification(
	graph *history.Graph,
	classification policy.Classification,
	report *verify.Report,
) []history.ID {
	diverging := make(map[string]struct{}, len(report.Diffs))
	for _, diff := range report.Diffs {
		diverging[diff.Path] = struct{}{}
	}

	repaired := make([]history.ID, 0)

	for _, commit := range graph.Commits() {
		if classification[commit.ID].Action != policy.ActionDrop {
			continue
		}

		if !touchesAny(commit.Changes, diverging) {
			continue
		}

		classification[commit.ID] = policy.Decision{Action: policy.ActionKeep, Rule: "auto-repair"}
		repaired = append(repaired, commit.ID)
	}

	return repaired
}

func touchesAny(changes history.ChangeSet, paths map[string]struct{}) bool {
	for _, change := range changes {
		if _, ok := paths[change.Path]; ok {
			return true
		}
	}

	return false
}
