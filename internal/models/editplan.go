package models

import (
	"errors"
	"fmt"
	"strings"
)

// Action identifies the kind of edit plan the reason stage produced.
type Action string

const (
	// ActionPatch applies an ordered list of exact-match replacements.
	ActionPatch Action = "patch"
	// ActionWrite creates or overwrites a whole file.
	ActionWrite Action = "write"
	// ActionNone means the task required no file changes.
	ActionNone Action = "none"
)

// EditOp is a single exact-match replacement. OldString is matched
// byte-for-byte against the current file content; it is not a pattern.
type EditOp struct {
	FilePath  string `json:"file"`
	OldString string `json:"old"`
	NewString string `json:"new"`
}

// EditPlan is the terminal output of the reason stage: either an ordered
// list of replacement operations, a whole-file write, or a no-op with a
// free-text conclusion.
type EditPlan struct {
	Action   Action   `json:"action"`
	Ops      []EditOp `json:"ops,omitempty"`     // for Action == patch
	FilePath string   `json:"file,omitempty"`    // for Action == write
	Content  string   `json:"content,omitempty"` // for Action == write
	Summary  string   `json:"summary,omitempty"` // for Action == none
}

// Validate checks structural consistency of the plan for its action.
func (p *EditPlan) Validate() error {
	switch p.Action {
	case ActionPatch:
		if len(p.Ops) == 0 {
			return errors.New("patch plan has no operations")
		}
		for i, op := range p.Ops {
			if op.FilePath == "" {
				return fmt.Errorf("operation %d has no file path", i+1)
			}
			if op.OldString == "" {
				return fmt.Errorf("operation %d has no old string", i+1)
			}
		}
		return nil
	case ActionWrite:
		if p.FilePath == "" {
			return errors.New("write plan has no file path")
		}
		return nil
	case ActionNone:
		return nil
	default:
		return fmt.Errorf("unknown edit plan action %q", p.Action)
	}
}

// Files returns the distinct file paths the plan targets, in first-use order.
func (p *EditPlan) Files() []string {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	for _, op := range p.Ops {
		add(op.FilePath)
	}
	add(p.FilePath)
	return files
}

// Describe renders a compact one-line description for diagnostics.
func (p *EditPlan) Describe() string {
	switch p.Action {
	case ActionPatch:
		parts := make([]string, 0, len(p.Ops))
		for i, op := range p.Ops {
			parts = append(parts, fmt.Sprintf("#%d %s: %q -> %q", i+1, op.FilePath, preview(op.OldString, 60), preview(op.NewString, 60)))
		}
		return "patch [" + strings.Join(parts, "; ") + "]"
	case ActionWrite:
		return fmt.Sprintf("write %s (%d chars)", p.FilePath, len(p.Content))
	case ActionNone:
		return "none: " + preview(p.Summary, 120)
	default:
		return string(p.Action)
	}
}

// PatchResult is the outcome of one patch engine invocation.
type PatchResult struct {
	Action  Action   // Kind of plan that was applied
	Applied int      // Operations applied before the first failure
	Files   []string // Files touched by applied operations

	// Failure details. FailedIndex is 1-based; 0 means every operation
	// applied. FileLength is the length of the failing file's current
	// content, so a retry can tell "file changed" from "string never
	// existed".
	FailedIndex     int
	FailedOldString string
	FileLength      int
	Diagnostic      string
}

// Failed reports whether the plan stopped before completing.
func (r *PatchResult) Failed() bool {
	return r.FailedIndex > 0
}

// preview truncates s for inclusion in diagnostics.
func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Preview returns a bounded prefix of s for diagnostics and digests.
func Preview(s string, max int) string {
	return preview(s, max)
}
