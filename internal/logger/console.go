// Package logger provides console logging for stitch pipeline runs.
//
// The logger reports pipeline progress at the subtask and stage levels.
// Implementations are thread-safe, prefix every line with a [HH:MM:SS]
// timestamp, and colorize output when writing to a terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/marcel/stitch/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// Console logs pipeline progress to a writer with timestamps and thread
// safety. It supports log level filtering to control message verbosity.
// Color output is automatically enabled for terminal output.
type Console struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsole creates a Console that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// logLevel determines the minimum level for messages to be output.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsole(writer io.Writer, logLevel string) *Console {
	return &Console{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether the writer is a TTY that supports colors.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	if color.NoColor {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates
// it. Returns "info" for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}

	return "info"
}

// shouldLog reports whether a message at the given level passes the filter.
func (c *Console) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(c.logLevel)
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// Tracef logs a trace-level message (most verbose).
func (c *Console) Tracef(format string, args ...interface{}) {
	c.logWithLevel("TRACE", fmt.Sprintf(format, args...))
}

// Debugf logs a debug-level message.
func (c *Console) Debugf(format string, args ...interface{}) {
	c.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// Infof logs an info-level message.
func (c *Console) Infof(format string, args ...interface{}) {
	c.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf logs a warning-level message.
func (c *Console) Warnf(format string, args ...interface{}) {
	c.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Errorf logs an error-level message.
func (c *Console) Errorf(format string, args ...interface{}) {
	c.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

// logWithLevel writes a message at the specified level if filtering allows.
// Format: "[HH:MM:SS] [LEVEL] <message>"
func (c *Console) logWithLevel(level, message string) {
	if c.writer == nil {
		return
	}

	if !c.shouldLog(strings.ToLower(level)) {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	ts := timestamp()
	var formatted string

	if c.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, colorizeLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}

	c.writer.Write([]byte(formatted))
}

func colorizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// TaskStart logs the start of a subtask at INFO level.
// Format: "[HH:MM:SS] Task <id>: <title>"
func (c *Console) TaskStart(task *models.SubTask) {
	if c.writer == nil || !c.shouldLog("info") {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	ts := timestamp()
	title := task.Title
	if c.colorOutput {
		title = color.New(color.Bold).Sprint(title)
	}
	fmt.Fprintf(c.writer, "[%s] Task %d: %s\n", ts, task.ID, title)
}

// Stage logs a stage transition for a subtask at DEBUG level.
// Format: "[HH:MM:SS] [DEBUG] Task <id> stage: <stage>"
func (c *Console) Stage(task *models.SubTask, stage models.Stage) {
	c.Debugf("Task %d stage: %s", task.ID, stage)
}

// TaskRetry logs a verify-failure retry at WARN level.
func (c *Console) TaskRetry(task *models.SubTask, reason string) {
	c.Warnf("Task %d retrying (attempt %d): %s", task.ID, task.RetryCount+1, reason)
}

// TaskComplete logs subtask completion at INFO level, color coded by
// terminal status.
func (c *Console) TaskComplete(task *models.SubTask) {
	if c.writer == nil || !c.shouldLog("info") {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	ts := timestamp()
	statusText := task.Status
	if c.colorOutput {
		switch task.Status {
		case models.StatusDone:
			statusText = color.New(color.FgGreen).Sprint(statusText)
		case models.StatusFailed:
			statusText = color.New(color.FgRed).Sprint(statusText)
		}
	}
	fmt.Fprintf(c.writer, "[%s] Task %d (%s): %s\n", ts, task.ID, task.Title, statusText)
}

// RunSummary logs the run report with completion statistics at INFO level.
func (c *Console) RunSummary(report *models.RunReport) {
	if c.writer == nil || !c.shouldLog("info") {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	ts := timestamp()
	durationStr := formatDuration(report.Duration)

	var output string
	if c.colorOutput {
		header := color.New(color.Bold).Sprint("=== Run Summary ===")
		output = fmt.Sprintf("[%s] %s\n", ts, header)
		output += fmt.Sprintf("[%s] Total tasks: %d\n", ts, len(report.Outcomes))

		doneText := color.New(color.FgGreen).Sprintf("Done: %d", report.Done)
		output += fmt.Sprintf("[%s] %s\n", ts, doneText)

		if report.Failed > 0 {
			failedText := color.New(color.FgRed).Sprintf("Failed: %d", report.Failed)
			output += fmt.Sprintf("[%s] %s\n", ts, failedText)
		} else {
			output += fmt.Sprintf("[%s] Failed: %d\n", ts, report.Failed)
		}

		output += fmt.Sprintf("[%s] Duration: %s\n", ts, durationStr)

		if report.HaltedEarly {
			halted := color.New(color.FgYellow).Sprint("Run halted before all tasks could execute")
			output += fmt.Sprintf("[%s] %s\n", ts, halted)
		}
	} else {
		output = fmt.Sprintf("[%s] === Run Summary ===\n", ts)
		output += fmt.Sprintf("[%s] Total tasks: %d\n", ts, len(report.Outcomes))
		output += fmt.Sprintf("[%s] Done: %d\n", ts, report.Done)
		output += fmt.Sprintf("[%s] Failed: %d\n", ts, report.Failed)
		output += fmt.Sprintf("[%s] Duration: %s\n", ts, durationStr)
		if report.HaltedEarly {
			output += fmt.Sprintf("[%s] Run halted before all tasks could execute\n", ts)
		}
	}

	for _, o := range report.Outcomes {
		if o.Status == models.StatusFailed {
			line := fmt.Sprintf("  - Task %d (%s): %s", o.ID, o.Title, o.Digest)
			if c.colorOutput {
				line = color.New(color.FgRed).Sprint(line)
			}
			output += fmt.Sprintf("[%s] %s\n", ts, line)
		}
	}

	c.writer.Write([]byte(output))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOp is a logger that discards all messages. Useful for tests.
type NoOp struct{}

// NewNoOp creates a NoOp logger.
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) Tracef(format string, args ...interface{})      {}
func (n *NoOp) Debugf(format string, args ...interface{})      {}
func (n *NoOp) Infof(format string, args ...interface{})       {}
func (n *NoOp) Warnf(format string, args ...interface{})       {}
func (n *NoOp) Errorf(format string, args ...interface{})      {}
func (n *NoOp) TaskStart(task *models.SubTask)                 {}
func (n *NoOp) Stage(task *models.SubTask, stage models.Stage) {}
func (n *NoOp) TaskRetry(task *models.SubTask, reason string)  {}
func (n *NoOp) TaskComplete(task *models.SubTask)              {}
func (n *NoOp) RunSummary(report *models.RunReport)            {}
