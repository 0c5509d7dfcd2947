// Package models defines the core data types shared across the stitch
// pipeline: subtasks, task plans, edit plans, patch results, and the
// structured payloads exchanged with the model session.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// SubTask status constants for plan lifecycle tracking.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// VerifyState is the tri-state outcome of the verification stage.
type VerifyState int

const (
	// VerifyUnset means verification has not run for the current attempt.
	VerifyUnset VerifyState = iota
	// VerifyPassed means the edit plan's intent is observably satisfied.
	VerifyPassed
	// VerifyFailed means the post-write file state contradicts the intent.
	VerifyFailed
)

// Pipeline stages in happy-path order. REPLAN is only entered when the
// skill match produces more than one capability tag.
type Stage int

const (
	StageSkillSelect Stage = iota
	StageReplan
	StageRulesSelect
	StageToolSelect
	StageReason
	StageWrite
	StageVerify
	StageSummarize
)

// String returns the stage name used in logs and history records.
func (s Stage) String() string {
	switch s {
	case StageSkillSelect:
		return "skill-select"
	case StageReplan:
		return "replan"
	case StageRulesSelect:
		return "rules-select"
	case StageToolSelect:
		return "tool-select"
	case StageReason:
		return "reason"
	case StageWrite:
		return "write"
	case StageVerify:
		return "verify"
	case StageSummarize:
		return "summarize"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// SubTask is one unit of planned work. The planner sets the identity
// fields; the pipeline stages fill in the rest as the task advances.
type SubTask struct {
	ID           int      // Unique within a TaskPlan, ordering-stable
	Title        string   // Short label, e.g. "Read main.go"
	Description  string   // Precise instruction for one file or resource
	ContextHints []string // Workspace paths relevant to this task, in priority order
	DependsOn    []int    // IDs that must be done before this task may start
	ToolHint     string   // Planner hint: read|write|run|search|patch

	Status      string // pending | in-progress | done | failed
	RetryCount  int    // Attempts consumed by the retry loop, capped by config
	ReplanDepth int    // How many replan splits produced this task
	ParentID    int    // ID of the task a replan split replaced (0 = planner-created)

	// Set by the selection stages.
	SkillTags   []string // Capability tags matched against the skill repository
	SkillPrompt string   // Merged skill guidance injected into the reason prompt
	RuleNames   []string // Names of rules selected for this task
	ToolNames   []string // Narrowed tool allow-list for the reason stage

	// Set by the reason/write/verify stages.
	EditPlan      *EditPlan    // Last proposed edit plan
	WriteResult   *PatchResult // Outcome of the last patch engine invocation
	Verify        VerifyState
	VerifyMessage string
	Retry         *RetryContext // Injected into the next reason call, then discarded

	Digest string // Fixed-length summary; the only artifact later tasks see
}

// Validate checks that the subtask has the fields every planner-produced
// task must carry.
func (t *SubTask) Validate() error {
	if t.ID <= 0 {
		return errors.New("subtask id must be positive")
	}
	if t.Description == "" {
		return errors.New("subtask description is required")
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return fmt.Errorf("subtask %d depends on itself", t.ID)
		}
	}
	return nil
}

// Terminal reports whether the task has reached a final status.
func (t *SubTask) Terminal() bool {
	return t.Status == StatusDone || t.Status == StatusFailed
}

// RetryContext is the structured failure payload built when verification
// fails with retry budget remaining. It is consumed by exactly one
// context-assembly call and then discarded.
type RetryContext struct {
	FailedPlan      *EditPlan // The edit plan that did not land
	FileContent     string    // Current (post-partial-write) content of the target file
	FailureMessage  string    // Verifier or patch engine diagnostic
	FailedIndex     int       // 1-based index of the failing operation, 0 if unknown
	FailedOldString string    // Bounded preview of the string that failed to match
}

// Render produces the text block injected into the retry reason prompt.
// Deterministic for identical inputs.
func (rc *RetryContext) Render() string {
	var sb strings.Builder
	sb.WriteString("PREVIOUS ATTEMPT FAILED\n")
	sb.WriteString("Error: " + rc.FailureMessage + "\n")
	if rc.FailedIndex > 0 {
		fmt.Fprintf(&sb, "Failed operation: #%d, old string: %q\n", rc.FailedIndex, rc.FailedOldString)
	}
	if rc.FailedPlan != nil {
		fmt.Fprintf(&sb, "Failed edit plan: %s\n", rc.FailedPlan.Describe())
	}
	if rc.FileContent != "" {
		sb.WriteString("ACTUAL current file content (copy strings EXACTLY from here):\n")
		sb.WriteString(rc.FileContent)
		sb.WriteString("\n")
	}
	sb.WriteString("Your previous old string did NOT match the file. Copy the exact text from the content above. Do not paraphrase it.")
	return sb.String()
}
