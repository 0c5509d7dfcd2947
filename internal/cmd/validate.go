package cmd

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcel/stitch/internal/rule"
	"github.com/marcel/stitch/internal/skill"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace configuration",
		Long: `Load and validate the workspace setup, checking for:
  - Configuration file syntax and value ranges
  - Backend URL well-formedness
  - Workspace directory existence
  - Skill and rule files parsing cleanly

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateWorkspace(cmd, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	addConfigFlags(cmd)

	return cmd
}

// validateWorkspace checks the configuration and workspace metadata,
// reporting each finding to output.
func validateWorkspace(cmd *cobra.Command, output io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "Configuration valid (workspace: %s)\n", cfg.Workspace)

	if _, err := url.ParseRequestURI(cfg.Model.BaseURL); err != nil {
		return fmt.Errorf("model.base_url %q is not a valid URL: %w", cfg.Model.BaseURL, err)
	}
	fmt.Fprintf(output, "Backend: %s (model %s)\n", cfg.Model.BaseURL, cfg.Model.Name)

	info, err := os.Stat(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("workspace directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace path %s is not a directory", cfg.Workspace)
	}

	skills, err := skill.Load(docDirs(cfg, "skills")...)
	if err != nil {
		return err
	}
	rules, err := rule.Load(docDirs(cfg, "rules")...)
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "Skills: %d loaded", skills.Len())
	if skills.Len() == 0 {
		fmt.Fprintf(output, " (the %s fallback will be used)", skill.GenericTag)
	}
	fmt.Fprintln(output)
	fmt.Fprintf(output, "Rules: %d loaded\n", rules.Len())

	fmt.Fprintf(output, "\nWorkspace is ready.\n")
	return nil
}
