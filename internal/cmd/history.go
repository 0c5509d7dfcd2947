package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/marcel/stitch/internal/history"
	"github.com/marcel/stitch/internal/models"
)

// NewHistoryCommand creates the 'stitch history' command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs",
		Long: `List and inspect runs recorded in the workspace history database.

Without arguments, lists the most recent runs. Use 'history show' to
see the per-task outcomes of one run.`,
		Args: cobra.NoArgs,
		RunE: runHistoryList,
	}

	addConfigFlags(cmd)
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")

	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

// newHistoryShowCommand creates the 'stitch history show' subcommand
func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show per-task outcomes for one run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}

	addConfigFlags(cmd)

	return cmd
}

// openHistoryStore opens the workspace history database, reporting a
// friendly message when no runs were ever recorded.
func openHistoryStore(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dbPath := historyDBPath(cfg)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no history database at %s (run a request first)", dbPath)
	}
	store, err := history.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

// runHistoryList executes the history list command
func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded yet.\n")
		return nil
	}

	printRunList(cmd.OutOrStdout(), runs)
	return nil
}

// printRunList formats and prints the run summaries, newest first
func printRunList(w io.Writer, runs []history.RunSummary) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "\n=== Recent Runs ===\n\n")
	for _, run := range runs {
		fmt.Fprintf(w, "%s  ", run.ID)
		gray.Fprintf(w, "%s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  Request: %s\n", compactLine(run.Request, 80))
		fmt.Fprintf(w, "  Tasks: ")
		green.Fprintf(w, "%d done", run.Done)
		if run.Failed > 0 {
			fmt.Fprintf(w, ", ")
			red.Fprintf(w, "%d failed", run.Failed)
		}
		if run.HaltedEarly {
			fmt.Fprintf(w, " ")
			yellow.Fprintf(w, "(halted early)")
		}
		fmt.Fprintf(w, "  Duration: %s\n\n", run.Duration.Round(time.Millisecond))
	}
}

// runHistoryShow executes the history show command
func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.RunDetail(cmd.Context(), args[0])
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no run with id %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	printRunDetail(cmd.OutOrStdout(), report)
	return nil
}

// printRunDetail formats one run's report with its per-task outcomes
func printRunDetail(w io.Writer, report *models.RunReport) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "\n=== Run %s ===\n\n", report.RunID)
	fmt.Fprintf(w, "Request: %s\n", report.Request)
	fmt.Fprintf(w, "Duration: %s\n", report.Duration.Round(time.Millisecond))
	if report.HaltedEarly {
		yellow.Fprintf(w, "Run halted before all tasks could execute\n")
	}
	fmt.Fprintln(w)

	for _, outcome := range report.Outcomes {
		fmt.Fprintf(w, "Task %d: %s ", outcome.ID, outcome.Title)
		switch outcome.Status {
		case models.StatusDone:
			green.Fprintf(w, "[done]")
		case models.StatusFailed:
			red.Fprintf(w, "[failed]")
		default:
			gray.Fprintf(w, "[%s]", outcome.Status)
		}
		if outcome.Retries > 0 {
			gray.Fprintf(w, " after %d retry(s)", outcome.Retries)
		}
		fmt.Fprintln(w)
		if outcome.Digest != "" {
			fmt.Fprintf(w, "  %s\n", compactLine(outcome.Digest, 120))
		}
		if outcome.Message != "" {
			fmt.Fprintf(w, "  Error: ")
			red.Fprintf(w, "%s\n", compactLine(outcome.Message, 120))
		}
	}

	if report.FinalAnswer != "" {
		fmt.Fprintf(w, "\n%s\n", report.FinalAnswer)
	}
}

// compactLine flattens newlines and truncates for one-line display
func compactLine(s string, max int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
