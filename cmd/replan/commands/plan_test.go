package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/replan/cmd/replan/commands"
	"github.com/Sumatoshi-tech/replan/pkg/pipeline"
	"github.com/Sumatoshi-tech/replan/pkg/verify"
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

func writeFixtures(t *testing.T, policyText string) (logPath, policyPath string) {
	t.Helper()

	dir := t.TempDir()

	logPath = filepath.Join(dir, "history.log")
	require.NoError(t, os.WriteFile(logPath, []byte(featureLog), 0o644))

	policyPath = filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(policyText), 0o644))

	return logPath, policyPath
}

func TestPlanCommandTodoOutput(t *testing.T) {
	logPath, policyPath := writeFixtures(t, dropWipPolicy)

	cmd := commands.NewPlanCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--log", logPath, "--policy", policyPath, "--format", "todo"})

	require.NoError(t, cmd.Execute())

	assert.Equal(t, "pick aaaaaaa\npick ccccccc\n", out.String())
}

func TestPlanCommandIncludeDrops(t *testing.T) {
	logPath, policyPath := writeFixtures(t, dropWipPolicy)

	cmd := commands.NewPlanCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--log", logPath, "--policy", policyPath, "--format", "todo", "--include-drops"})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "drop bbbbbbb")
}

func TestPlanCommandTableOutput(t *testing.T) {
	logPath, policyPath := writeFixtures(t, dropWipPolicy)

	cmd := commands.NewPlanCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--log", logPath, "--policy", policyPath, "--no-color"})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Add feature scaffolding")
	assert.Contains(t, out.String(), "verification passed")
}

func TestPlanCommandWritesPlot(t *testing.T) {
	logPath, policyPath := writeFixtures(t, dropWipPolicy)
	plotPath := filepath.Join(t.TempDir(), "actions.html")

	cmd := commands.NewPlanCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log", logPath, "--policy", policyPath, "--format", "todo", "--plot", plotPath})

	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(plotPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Rebase Plan Actions")
}

func TestPlanCommandRetriesExhausted(t *testing.T) {
	// Dropping the cleanup commit leaves debug.log behind. With zero
	// retries the repair loop never runs, so the failure surfaces.
	badPolicy := `rules:
  - name: drop-cleanup
    match:
      message: "^Remove"
    action: drop
`

	logPath, policyPath := writeFixtures(t, badPolicy)

	cmd := commands.NewPlanCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log", logPath, "--policy", policyPath, "--max-retries", "0"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, pipeline.ErrRetriesExhausted)
}

func TestPlanCommandMissingPolicy(t *testing.T) {
	logPath, _ := writeFixtures(t, dropWipPolicy)

	cmd := commands.NewPlanCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log", logPath})

	err := cmd.Execute()
	assert.ErrorIs(t, err, commands.ErrNoPolicy)
}

func TestVerifyCommandPass(t *testing.T) {
	logPath, policyPath := writeFixtures(t, dropWipPolicy)

	cmd := commands.NewVerifyCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--log", logPath, "--policy", policyPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "verification passed")
}

func TestVerifyCommandFailure(t *testing.T) {
	badPolicy := `rules:
  - name: drop-cleanup
    match:
      message: "^Remove"
    action: drop
`

	logPath, policyPath := writeFixtures(t, badPolicy)

	cmd := commands.NewVerifyCommand()

	var out, errOut bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--log", logPath, "--policy", policyPath})

	err := cmd.Execute()
	require.Error(t, err)

	var failure *verify.FailureError

	assert.ErrorAs(t, err, &failure)

	// Divergence details and the full diff belong on stderr; stdout
	// stays empty on failure.
	assert.Contains(t, errOut.String(), "diverged: debug.log")
	assert.Contains(t, errOut.String(), "@@ -")
	assert.Empty(t, out.String())
}

func TestMCPCommandHasFlags(t *testing.T) {
	cmd := commands.NewMCPCommand()

	assert.NotNil(t, cmd.Flags().Lookup("config"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.Equal(t, "mcp", cmd.Use)
}
