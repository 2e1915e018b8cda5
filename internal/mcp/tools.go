package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool name constants.
const (
	ToolNamePlan   = "replan_plan"
	ToolNameVerify = "replan_verify"
)

// Input size limits.
const (
	// MaxLogInputBytes is the maximum allowed size for an inline history log (4 MB).
	MaxLogInputBytes = 4 << 20
	// MaxPolicyInputBytes is the maximum allowed size for an inline policy (256 KB).
	MaxPolicyInputBytes = 256 << 10
)

// Sentinel errors for tool input validation.
var (
	// ErrNoHistorySource indicates neither repo_path nor log was provided.
	ErrNoHistorySource = errors.New("either repo_path or log is required")
	// ErrAmbiguousHistorySource indicates both repo_path and log were provided.
	ErrAmbiguousHistorySource = errors.New("repo_path and log are mutually exclusive")
	// ErrNoPolicySource indicates neither policy_path nor policy was provided.
	ErrNoPolicySource = errors.New("either policy_path or policy is required")
	// ErrAmbiguousPolicySource indicates both policy_path and policy were provided.
	ErrAmbiguousPolicySource = errors.New("policy_path and policy are mutually exclusive")
	// ErrRepoPathNotAbsolute indicates the repo_path is not an absolute path.
	ErrRepoPathNotAbsolute = errors.New("repo_path must be an absolute path")
	// ErrLogTooLarge indicates the inline log exceeds the size limit.
	ErrLogTooLarge = errors.New("log input exceeds maximum size")
	// ErrPolicyTooLarge indicates the inline policy exceeds the size limit.
	ErrPolicyTooLarge = errors.New("policy input exceeds maximum size")
)

// PlanInput is the input schema for the replan_plan tool.
type PlanInput struct {
	RepoPath          string `json:"repo_path,omitempty"          jsonschema:"absolute path to a Git repository"`
	Log               string `json:"log,omitempty"                jsonschema:"inline history log (alternative to repo_path)"`
	Base              string `json:"base,omitempty"               jsonschema:"exclusive lower bound of the commit range"`
	Head              string `json:"head,omitempty"               jsonschema:"inclusive upper bound of the commit range (default HEAD)"`
	PolicyPath        string `json:"policy_path,omitempty"        jsonschema:"path to a YAML classification policy"`
	Policy            string `json:"policy,omitempty"             jsonschema:"inline YAML classification policy"`
	MaxRetries        int    `json:"max_retries,omitempty"        jsonschema:"verification repair attempts (default 3)"`
	ConflictThreshold int    `json:"conflict_threshold,omitempty" jsonschema:"tolerated overlapping squash writes per group"`
	Limit             int    `json:"limit,omitempty"              jsonschema:"maximum number of commits to load"`
	IncludeDrops      bool   `json:"include_drops,omitempty"      jsonschema:"list dropped commits in the todo output"`
}

// VerifyInput is the input schema for the replan_verify tool.
type VerifyInput struct {
	RepoPath          string `json:"repo_path,omitempty"          jsonschema:"absolute path to a Git repository"`
	Log               string `json:"log,omitempty"                jsonschema:"inline history log (alternative to repo_path)"`
	Base              string `json:"base,omitempty"               jsonschema:"exclusive lower bound of the commit range"`
	Head              string `json:"head,omitempty"               jsonschema:"inclusive upper bound of the commit range (default HEAD)"`
	PolicyPath        string `json:"policy_path,omitempty"        jsonschema:"path to a YAML classification policy"`
	Policy            string `json:"policy,omitempty"             jsonschema:"inline YAML classification policy"`
	ConflictThreshold int    `json:"conflict_threshold,omitempty" jsonschema:"tolerated overlapping squash writes per group"`
	Limit             int    `json:"limit,omitempty"              jsonschema:"maximum number of commits to load"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// validateSources checks the history and policy source constraints shared
// by both tools.
func validateSources(repoPath, log, policyPath, policy string) error {
	switch {
	case repoPath == "" && log == "":
		return ErrNoHistorySource
	case repoPath != "" && log != "":
		return ErrAmbiguousHistorySource
	case repoPath != "" && !filepath.IsAbs(repoPath):
		return fmt.Errorf("%w: %s", ErrRepoPathNotAbsolute, repoPath)
	case len(log) > MaxLogInputBytes:
		return fmt.Errorf("%w: %d bytes (max %d)", ErrLogTooLarge, len(log), MaxLogInputBytes)
	}

	switch {
	case policyPath == "" && policy == "":
		return ErrNoPolicySource
	case policyPath != "" && policy != "":
		return ErrAmbiguousPolicySource
	case len(policy) > MaxPolicyInputBytes:
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPolicyTooLarge, len(policy), MaxPolicyInputBytes)
	}

	return nil
}
