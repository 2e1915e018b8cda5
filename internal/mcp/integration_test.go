package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/replan/internal/mcp"
)

const featureLog = `base 0000000

commit aaaaaaa 0000000
author Dev <dev@example.com>
date 2024-03-01T10:00:00Z
message Add feature scaffolding
change feature.go h1

commit bbbbbbb aaaaaaa
author Dev <dev@example.com>
date 2024-03-01T11:00:00Z
message wip debug dump
change debug.log h2

commit ccccccc bbbbbbb
author Dev <dev@example.com>
date 2024-03-01T12:00:00Z
message Remove debug dump
delete debug.log
`

const dropWipPolicy = `rules:
  - name: drop-wip
    match:
      message: "^wip"
    action: drop
`

func startSession(t *testing.T) (*mcpsdk.ClientSession, context.Context) {
	t.Helper()

	srv := mcp.NewServer(mcp.ServerDeps{})

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		<-serverDone
	})

	return session, ctx
}

func textContent(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return text.Text
}

func TestServer_ListTools(t *testing.T) {
	t.Parallel()

	session, ctx := startSession(t)

	toolsResult, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
	}

	assert.Contains(t, toolNames, "replan_plan")
	assert.Contains(t, toolNames, "replan_verify")
	assert.Len(t, toolNames, 2)

	for _, tool := range toolsResult.Tools {
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}
}

func TestServer_ListToolNames(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})
	assert.Equal(t, []string{"replan_plan", "replan_verify"}, srv.ListToolNames())
}

func TestServer_CallPlan(t *testing.T) {
	t.Parallel()

	session, ctx := startSession(t)

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name: "replan_plan",
		Arguments: map[string]any{
			"log":    featureLog,
			"policy": dropWipPolicy,
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "tool returned error: %s", textContent(t, result))

	var output struct {
		Todo       string   `json:"todo"`
		Operations int      `json:"operations"`
		Dropped    []string `json:"dropped"`
		Verified   bool     `json:"verified"`
		Attempts   int      `json:"attempts"`
	}

	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &output))

	assert.Equal(t, 2, output.Operations)
	assert.Equal(t, []string{"bbbbbbb"}, output.Dropped)
	assert.True(t, output.Verified)
	assert.Equal(t, 1, output.Attempts)
	assert.Contains(t, output.Todo, "pick aaaaaaa")
	assert.NotContains(t, output.Todo, "bbbbbbb")
}

func TestServer_CallVerifyFailure(t *testing.T) {
	t.Parallel()

	session, ctx := startSession(t)

	// Dropping the cleanup commit leaves debug.log behind: the rewritten
	// tree keeps a file the original deleted.
	badPolicy := `rules:
  - name: drop-cleanup
    match:
      message: "^Remove"
    action: drop
`

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name: "replan_verify",
		Arguments: map[string]any{
			"log":    featureLog,
			"policy": badPolicy,
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "tool returned error: %s", textContent(t, result))

	var output struct {
		Pass      bool `json:"pass"`
		Diverging []struct {
			Path string `json:"path"`
		} `json:"diverging"`
	}

	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &output))

	assert.False(t, output.Pass)
	require.Len(t, output.Diverging, 1)
	assert.Equal(t, "debug.log", output.Diverging[0].Path)
}

func TestServer_CallPlanValidation(t *testing.T) {
	t.Parallel()

	session, ctx := startSession(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "no history source",
			args: map[string]any{"policy": dropWipPolicy},
			want: "either repo_path or log is required",
		},
		{
			name: "both history sources",
			args: map[string]any{"repo_path": "/repo", "log": featureLog, "policy": dropWipPolicy},
			want: "mutually exclusive",
		},
		{
			name: "relative repo path",
			args: map[string]any{"repo_path": "repo", "policy": dropWipPolicy},
			want: "must be an absolute path",
		},
		{
			name: "no policy source",
			args: map[string]any{"log": featureLog},
			want: "either policy_path or policy is required",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
				Name:      "replan_plan",
				Arguments: testCase.args,
			})
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, textContent(t, result), testCase.want)
		})
	}
}
