package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for stitch
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Deterministic pipeline for model-driven code edits",
		Long: `Stitch turns a natural-language change request into exact-match
patches against a workspace.

It asks a model backend (any OpenAI-compatible endpoint) to plan the
request into subtasks, then drives each subtask through a fixed stage
pipeline: capability selection, rule and tool selection, reasoning with
bounded file context, patch application, and verification. All control
flow is deterministic; only the model calls are not.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
