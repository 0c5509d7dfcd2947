package models

import (
	"fmt"
	"time"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Args map[string]string `json:"args"`
}

// TaskOutcome is one entry of the finalizer input: the ordered run report
// the core hands to an external summarizer or presenter.
type TaskOutcome struct {
	ID      int
	Title   string
	Status  string
	Digest  string
	Retries int
	Message string // Verification diagnostic, empty when the task passed
}

// RunReport aggregates a whole run for the finalizer and history store.
type RunReport struct {
	RunID       string
	Request     string
	Outcomes    []TaskOutcome
	Done        int
	Failed      int
	HaltedEarly bool // A pending task's dependency was unmet, run stopped
	Duration    time.Duration
	FinalAnswer string
}

// Summary returns a one-line digest of the run for logs.
func (r *RunReport) Summary() string {
	state := "completed"
	if r.HaltedEarly {
		state = "halted early"
	}
	return fmt.Sprintf("%s: %d done, %d failed of %d tasks in %s",
		state, r.Done, r.Failed, len(r.Outcomes), r.Duration.Round(time.Millisecond))
}
