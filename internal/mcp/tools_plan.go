package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/replan/pkg/gitlib"
	"github.com/Sumatoshi-tech/replan/pkg/history"
	"github.com/Sumatoshi-tech/replan/pkg/pipeline"
	"github.com/Sumatoshi-tech/replan/pkg/plan"
	"github.com/Sumatoshi-tech/replan/pkg/policy"
	"github.com/Sumatoshi-tech/replan/pkg/verify"
)

// defaultMaxRetries is the repair budget when the caller does not set one.
const defaultMaxRetries = 3

// planOutput is the structured result of the replan_plan tool.
type planOutput struct {
	Todo       string   `json:"todo"`
	Operations int      `json:"operations"`
	Dropped    []string `json:"dropped"`
	Attempts   int      `json:"attempts"`
	Repaired   []string `json:"repaired,omitempty"`
	Verified   bool     `json:"verified"`
	Warnings   []string `json:"warnings,omitempty"`
}

// verifyOutput is the structured result of the replan_verify tool.
type verifyOutput struct {
	Pass      bool         `json:"pass"`
	Diverging []pathReport `json:"diverging,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
}

type pathReport struct {
	Path     string `json:"path"`
	Original string `json:"original,omitempty"`
	Rebased  string `json:"rebased,omitempty"`
}

// handlePlan processes replan_plan tool calls.
func (s *Server) handlePlan(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input PlanInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateSources(input.RepoPath, input.Log, input.PolicyPath, input.Policy)
	if err != nil {
		return errorResult(err)
	}

	graph, err := loadGraph(ctx, input.RepoPath, input.Log, input.Base, input.Head, input.Limit)
	if err != nil {
		return errorResult(err)
	}

	pol, err := loadPolicy(input.PolicyPath, input.Policy)
	if err != nil {
		return errorResult(err)
	}

	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	result, err := pipeline.Run(ctx, graph, pol, pipeline.Options{
		MaxRetries:        maxRetries,
		ConflictThreshold: input.ConflictThreshold,
		Logger:            s.logger,
	})
	if err != nil {
		return errorResult(err)
	}

	var todo strings.Builder

	emitErr := result.Plan.WriteTodo(&todo, plan.EmitOptions{IncludeDrops: input.IncludeDrops})
	if emitErr != nil {
		return errorResult(emitErr)
	}

	output := planOutput{
		Todo:       todo.String(),
		Operations: len(result.Plan.Ops),
		Dropped:    idStrings(droppedIDs(result.Plan)),
		Attempts:   result.Attempts,
		Repaired:   idStrings(result.Repaired),
		Verified:   result.Report.OK(),
		Warnings:   warningStrings(result.Report),
	}

	return jsonResult(output)
}

// handleVerify processes replan_verify tool calls. Unlike replan_plan it
// never repairs the classification: a failing policy fails loudly.
func (s *Server) handleVerify(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input VerifyInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateSources(input.RepoPath, input.Log, input.PolicyPath, input.Policy)
	if err != nil {
		return errorResult(err)
	}

	graph, err := loadGraph(ctx, input.RepoPath, input.Log, input.Base, input.Head, input.Limit)
	if err != nil {
		return errorResult(err)
	}

	pol, err := loadPolicy(input.PolicyPath, input.Policy)
	if err != nil {
		return errorResult(err)
	}

	classification, err := pol.Classify(graph)
	if err != nil {
		return errorResult(fmt.Errorf("classify: %w", err))
	}

	rebasePlan, err := plan.Synthesize(graph, classification)
	if err != nil {
		return errorResult(fmt.Errorf("synthesize: %w", err))
	}

	report := verify.Run(graph, rebasePlan, verify.Options{ConflictThreshold: input.ConflictThreshold})

	output := verifyOutput{
		Pass:     report.OK(),
		Warnings: warningStrings(report),
	}

	for _, diff := range report.Diffs {
		output.Diverging = append(output.Diverging, pathReport{
			Path:     diff.Path,
			Original: diff.Original,
			Rebased:  diff.Rebased,
		})
	}

	return jsonResult(output)
}

// loadGraph builds the commit graph from whichever source the caller gave.
func loadGraph(
	ctx context.Context,
	repoPath, log, base, head string,
	limit int,
) (*history.Graph, error) {
	if repoPath != "" {
		graph, err := gitlib.Load(ctx, repoPath, gitlib.LoadOptions{Base: base, Head: head, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("load repository history: %w", err)
		}

		return graph, nil
	}

	graph, err := history.ParseLog(strings.NewReader(log))
	if err != nil {
		return nil, fmt.Errorf("parse history log: %w", err)
	}

	return graph, nil
}

// loadPolicy builds the policy from a file path or inline YAML.
func loadPolicy(path, inline string) (*policy.Policy, error) {
	if path != "" {
		return policy.Load(path)
	}

	return policy.Parse([]byte(inline))
}

func droppedIDs(rebasePlan *plan.Plan) []history.ID {
	ids := make([]history.ID, 0, len(rebasePlan.Drops))
	for _, drop := range rebasePlan.Drops {
		ids = append(ids, drop.ID)
	}

	return ids
}

func idStrings(ids []history.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}

	return out
}

func warningStrings(report *verify.Report) []string {
	if report == nil || len(report.Warnings) == 0 {
		return nil
	}

	out := make([]string, 0, len(report.Warnings))
	for _, warning := range report.Warnings {
		out = append(out, warning.String())
	}

	return out
}
