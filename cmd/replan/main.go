// Package main provides the entry point for the replan CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/replan/cmd/replan/commands"
	"github.com/Sumatoshi-tech/replan/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "replan",
		Short: "Replan - commit history rebase planner and verifier",
		Long: `Replan turns a messy commit history into a clean, verified rebase plan.

Commands:
  plan      Classify commits against a policy and emit a verified rebase plan
  verify    Check a policy against a commit range without auto-repair
  mcp       Start an MCP server exposing planning tools over stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewPlanCommand())
	rootCmd.AddCommand(commands.NewVerifyCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "replan %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
