package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcel/stitch/internal/config"
	"github.com/marcel/stitch/internal/filelock"
	"github.com/marcel/stitch/internal/history"
	"github.com/marcel/stitch/internal/logger"
	"github.com/marcel/stitch/internal/models"
	"github.com/marcel/stitch/internal/pipeline"
	"github.com/marcel/stitch/internal/rule"
	"github.com/marcel/stitch/internal/session"
	"github.com/marcel/stitch/internal/skill"
	"github.com/marcel/stitch/internal/tools"
	"github.com/marcel/stitch/internal/workspace"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [request]",
		Short: "Execute a change request against the workspace",
		Long: `Execute a change request by planning it into subtasks and driving
each subtask through the edit pipeline.

With a request argument, runs once and exits. Without arguments, starts
an interactive session that accepts one request per line and keeps the
file cache warm between requests.

Configuration is loaded from <workspace>/.stitch/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  # One-shot execution
  stitch run "rename the greet function to hello"

  # Interactive session
  stitch run

  # Other options
  stitch run -w ./service "add a health endpoint"   # Explicit workspace
  stitch run --model qwen2.5-coder "fix the test"   # Override model
  stitch run --url http://gpu-box:8000 "..."        # Override backend
  stitch run --context 4096 "..."                   # Raise context ceiling
  stitch run --quiet "..."                          # Errors only
  stitch run --no-lock "..."                        # Skip the run lock`,
		Args: cobra.ArbitraryArgs,
		RunE: runCommand,
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("quiet", false, "Only log errors")
	cmd.Flags().Bool("no-lock", false, "Do not take the workspace run lock")
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")

	return cmd
}

// addConfigFlags declares the flags shared by every subcommand that
// loads configuration.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: <workspace>/.stitch/config.yaml)")
	cmd.Flags().StringP("workspace", "w", "", "Workspace root directory (default: current directory)")
	cmd.Flags().String("model", "", "Model name to request from the backend")
	cmd.Flags().String("url", "", "Base URL of the OpenAI-compatible backend")
	cmd.Flags().Int("context", 0, "Context ceiling in tokens")
	cmd.Flags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
}

// loadConfig loads configuration for a subcommand and merges flag
// overrides. Flags take precedence over file settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	workspaceFlag, _ := cmd.Flags().GetString("workspace")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		dir := workspaceFlag
		if dir == "" {
			dir = "."
		}
		cfg, err = config.LoadConfigFromDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	modelFlag, _ := cmd.Flags().GetString("model")
	urlFlag, _ := cmd.Flags().GetString("url")
	contextFlag, _ := cmd.Flags().GetInt("context")
	logLevelFlag, _ := cmd.Flags().GetString("log-level")
	cfg.MergeWithFlags(&workspaceFlag, &modelFlag, &urlFlag, &contextFlag, &logLevelFlag)

	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		cfg.LogLevel = "error"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// stitchDir returns the workspace metadata directory.
func stitchDir(cfg *config.Config) string {
	return filepath.Join(cfg.Workspace, ".stitch")
}

// docDirs returns the search path for skill or rule documents: the
// user-level directory first, the workspace last so workspace files
// shadow user-level ones with the same stem.
func docDirs(cfg *config.Config, kind string) []string {
	var dirs []string
	if userDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(userDir, "stitch", kind))
	}
	return append(dirs, filepath.Join(stitchDir(cfg), kind))
}

// historyDBPath resolves the history database path relative to the
// workspace unless it is already absolute.
func historyDBPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.History.DBPath) {
		return cfg.History.DBPath
	}
	return filepath.Join(cfg.Workspace, cfg.History.DBPath)
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	noLock, _ := cmd.Flags().GetBool("no-lock")
	if !noLock {
		lock := filelock.NewRunLock(filepath.Join(stitchDir(cfg), "run.lock"))
		if err := lock.Acquire(); err != nil {
			return err
		}
		defer lock.Release()
	}

	log := logger.NewConsole(cmd.OutOrStdout(), cfg.LogLevel)

	cache := workspace.NewCache()
	registry, err := tools.DefaultRegistry(tools.FSOptions{
		Root:           cfg.Workspace,
		Cache:          cache,
		CommandTimeout: cfg.CommandTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	skills, err := skill.Load(docDirs(cfg, "skills")...)
	if err != nil {
		return err
	}
	rules, err := rule.Load(docDirs(cfg, "rules")...)
	if err != nil {
		return err
	}
	log.Debugf("loaded %d skill(s), %d rule(s), %d tool(s)", skills.Len(), rules.Len(), registry.Len())

	sess := &session.Client{
		BaseURL:         cfg.Model.BaseURL,
		Model:           cfg.Model.Name,
		APIKey:          cfg.Model.APIKey,
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
		Timeout:         cfg.Model.Timeout,
	}

	ctrl, err := pipeline.New(pipeline.Options{
		Config:  cfg,
		Log:     log,
		Session: sess,
		Skills:  skills,
		Rules:   rules,
		Tools:   registry,
		Cache:   cache,
	})
	if err != nil {
		return err
	}

	noHistory, _ := cmd.Flags().GetBool("no-history")
	recordHistory := cfg.History.Enabled && !noHistory

	if len(args) > 0 {
		return runOnce(cmd, ctrl, cfg, log, recordHistory, strings.Join(args, " "))
	}
	return runInteractive(cmd, ctrl, cfg, log, recordHistory)
}

// runOnce executes a single request and exits non-zero if any task
// failed.
func runOnce(cmd *cobra.Command, ctrl *pipeline.Controller, cfg *config.Config, log logger.Logger, recordHistory bool, request string) error {
	startedAt := time.Now()
	report, err := ctrl.Run(cmd.Context(), request)
	if err != nil {
		return err
	}
	recordRun(cmd.Context(), cfg, log, recordHistory, startedAt, report)

	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", report.FinalAnswer)
	if report.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", report.Failed)
	}
	return nil
}

// runInteractive reads one request per line until EOF or an exit
// command. The file cache persists across requests, so later requests
// see files patched by earlier ones without re-reading disk.
func runInteractive(cmd *cobra.Command, ctrl *pipeline.Controller, cfg *config.Config, log logger.Logger, recordHistory bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "stitch %s interactive session (workspace: %s)\n", Version, cfg.Workspace)
	fmt.Fprintf(out, "Type a change request, or \"exit\" to quit.\n\n")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "stitch> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		startedAt := time.Now()
		report, err := ctrl.Run(cmd.Context(), line)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		recordRun(cmd.Context(), cfg, log, recordHistory, startedAt, report)
		fmt.Fprintf(out, "\n%s\n\n", report.FinalAnswer)
	}
	return scanner.Err()
}

// recordRun persists a run report to the history database. History
// failures never fail the run.
func recordRun(ctx context.Context, cfg *config.Config, log logger.Logger, enabled bool, startedAt time.Time, report *models.RunReport) {
	if !enabled {
		return
	}
	store, err := history.NewStore(historyDBPath(cfg))
	if err != nil {
		log.Warnf("history disabled for this run: %v", err)
		return
	}
	defer store.Close()
	if err := store.RecordRun(ctx, startedAt, report); err != nil {
		log.Warnf("failed to record run %s: %v", report.RunID, err)
	}
}
