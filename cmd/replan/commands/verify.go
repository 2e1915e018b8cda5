package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/replan/pkg/config"
	"github.com/Sumatoshi-tech/replan/pkg/observability"
	"github.com/Sumatoshi-tech/replan/pkg/plan"
	"github.com/Sumatoshi-tech/replan/pkg/verify"
)

// verifyFlags collects every flag of the verify command.
type verifyFlags struct {
	src               sourceFlags
	configPath        string
	policyPath        string
	conflictThreshold int
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	flags := &verifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify [repo-path]",
		Short: "Check a policy against a commit range without auto-repair",
		Long: `Verify classifies the range, synthesizes the plan, and replays it
against the original history. Unlike plan it never repairs unsafe drops:
a policy that loses content fails with the diverging paths listed.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			flags.src.RepoPath = "."
			if len(args) == 1 {
				flags.src.RepoPath = args[0]
			}

			return runVerify(cobraCmd.Context(), cobraCmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&flags.policyPath, "policy", "", "path to the YAML classification policy")
	cmd.Flags().StringVar(&flags.src.LogPath, "log", "", "read history from a text log instead of a repository ('-' for stdin)")
	cmd.Flags().StringVar(&flags.src.Base, "base", "", "exclusive lower bound of the commit range")
	cmd.Flags().StringVar(&flags.src.Head, "head", "", "inclusive upper bound of the commit range (default HEAD)")
	cmd.Flags().IntVar(&flags.src.Limit, "limit", 0, "maximum number of commits to load")
	cmd.Flags().BoolVar(&flags.src.NoCache, "no-cache", false, "bypass the on-disk history cache")
	cmd.Flags().IntVar(&flags.conflictThreshold, "conflict-threshold", -1, "tolerated overlapping squash writes per group (default from config)")

	return cmd
}

func runVerify(ctx context.Context, cobraCmd *cobra.Command, flags *verifyFlags) error {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}

	providers, err := initObservability(cfg, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	ctx, span := providers.Tracer.Start(ctx, "replan.verify")
	defer span.End()

	graph, err := loadGraph(ctx, flags.src, cfg, providers.Logger)
	if err != nil {
		return err
	}

	pol, err := loadPolicy(flags.policyPath, cfg)
	if err != nil {
		return err
	}

	classification, err := pol.Classify(graph)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	rebasePlan, err := plan.Synthesize(graph, classification)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	conflictThreshold := flags.conflictThreshold
	if conflictThreshold < 0 {
		conflictThreshold = cfg.Planner.ConflictThreshold
	}

	report := verify.Run(graph, rebasePlan, verify.Options{ConflictThreshold: conflictThreshold})

	// Diagnostics go to stderr; stdout stays reserved for the pass line.
	errOut := cobraCmd.ErrOrStderr()

	for _, warning := range report.Warnings {
		fmt.Fprintf(errOut, "warning: %s\n", warning.String())
	}

	if !report.OK() {
		for _, diff := range report.Diffs {
			fmt.Fprintf(errOut, "diverged: %s (original %q, rebased %q)\n", diff.Path, diff.Original, diff.Rebased)
		}

		failErr := report.Err()

		var failure *verify.FailureError
		if errors.As(failErr, &failure) {
			fmt.Fprint(errOut, failure.DiffText())
		}

		return failErr
	}

	fmt.Fprintf(cobraCmd.OutOrStdout(), "verification passed: %d operation(s), %d dropped\n",
		len(rebasePlan.Ops), len(rebasePlan.Drops))

	return nil
}
