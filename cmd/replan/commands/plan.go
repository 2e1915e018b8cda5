package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/replan/pkg/config"
	"github.com/Sumatoshi-tech/replan/pkg/observability"
	"github.com/Sumatoshi-tech/replan/pkg/pipeline"
	"github.com/Sumatoshi-tech/replan/pkg/render"
)

// planFlags collects every flag of the plan command.
type planFlags struct {
	src               sourceFlags
	configPath        string
	policyPath        string
	format            string
	plotPath          string
	maxRetries        int
	conflictThreshold int
	includeDrops      bool
	noColor           bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	flags := &planFlags{}

	cmd := &cobra.Command{
		Use:   "plan [repo-path]",
		Short: "Classify commits against a policy and emit a verified rebase plan",
		Long: `Plan loads a commit range, classifies every commit against a YAML
policy, synthesizes a rebase-todo style plan, and verifies that replaying
the plan reproduces the original final tree. Drops that would lose
content are flipped back to keeps, up to --max-retries times.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			flags.src.RepoPath = "."
			if len(args) == 1 {
				flags.src.RepoPath = args[0]
			}

			return runPlan(cobraCmd.Context(), cobraCmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&flags.policyPath, "policy", "", "path to the YAML classification policy")
	cmd.Flags().StringVar(&flags.src.LogPath, "log", "", "read history from a text log instead of a repository ('-' for stdin)")
	cmd.Flags().StringVar(&flags.src.Base, "base", "", "exclusive lower bound of the commit range")
	cmd.Flags().StringVar(&flags.src.Head, "head", "", "inclusive upper bound of the commit range (default HEAD)")
	cmd.Flags().IntVar(&flags.src.Limit, "limit", 0, "maximum number of commits to load")
	cmd.Flags().BoolVar(&flags.src.NoCache, "no-cache", false, "bypass the on-disk history cache")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "table", "output format: table, todo, json")
	cmd.Flags().StringVar(&flags.plotPath, "plot", "", "write an HTML action-summary chart to this path")
	cmd.Flags().IntVar(&flags.maxRetries, "max-retries", -1, "verification repair attempts (default from config)")
	cmd.Flags().IntVar(&flags.conflictThreshold, "conflict-threshold", -1, "tolerated overlapping squash writes per group (default from config)")
	cmd.Flags().BoolVar(&flags.includeDrops, "include-drops", false, "list dropped commits in the output")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	return cmd
}

func runPlan(ctx context.Context, cobraCmd *cobra.Command, flags *planFlags) error {
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

	ctx, span := providers.Tracer.Start(ctx, "replan.plan")
	defer span.End()

	graph, err := loadGraph(ctx, flags.src, cfg, providers.Logger)
	if err != nil {
		return err
	}

	pol, err := loadPolicy(flags.policyPath, cfg)
	if err != nil {
		return err
	}

	maxRetries := flags.maxRetries
	if maxRetries < 0 {
		maxRetries = cfg.Planner.MaxRetries
	}

	conflictThreshold := flags.conflictThreshold
	if conflictThreshold < 0 {
		conflictThreshold = cfg.Planner.ConflictThreshold
	}

	result, err := pipeline.Run(ctx, graph, pol, pipeline.Options{
		MaxRetries:        maxRetries,
		ConflictThreshold: conflictThreshold,
		Logger:            providers.Logger,
	})
	if err != nil {
		return err
	}

	renderErr := render.WritePlan(cobraCmd.OutOrStdout(), graph, result.Plan, result.Report, render.Options{
		Format:       render.Format(flags.format),
		IncludeDrops: flags.includeDrops,
		NoColor:      flags.noColor,
	})
	if renderErr != nil {
		return renderErr
	}

	if flags.plotPath != "" {
		return writePlot(flags.plotPath, result)
	}

	return nil
}

func writePlot(path string, result *pipeline.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	defer file.Close()

	return render.WriteActionChart(file, result.Plan)
}
