// Package assemble builds the bounded text context handed to the model
// at each pipeline stage. Every invocation produces a fresh allocation
// over the remaining character budget; nothing is persisted between
// calls.
package assemble

import (
	"fmt"
	"strings"

	"github.com/marcel/stitch/internal/config"
	"github.com/marcel/stitch/internal/models"
	"github.com/marcel/stitch/internal/workspace"
)

// Run exposes the cross-task state a context draws from: file content
// and digests of completed tasks.
type Run struct {
	Cache *workspace.Cache
	Plan  *models.TaskPlan

	// Live reads a file from disk when the cache has no entry.
	// May be nil, in which case uncached hint files are omitted.
	Live func(path string) (string, bool)
}

// Content returns the current content of path, preferring the cache.
func (r *Run) Content(path string) (string, bool) {
	if r.Cache != nil {
		if content, ok := r.Cache.Get(path); ok {
			return content, true
		}
	}
	if r.Live != nil {
		return r.Live(path)
	}
	return "", false
}

// Digest returns the stored digest of a completed task, if any.
func (r *Run) Digest(id int) (string, bool) {
	if r.Plan == nil {
		return "", false
	}
	t := r.Plan.Task(id)
	if t == nil || t.Digest == "" {
		return "", false
	}
	return t.Digest, true
}

// Assembler allocates a fixed character budget across competing context
// fragments in strict priority order: retry diagnostics, then the task's
// own description, then hint-file content, then dependency digests.
type Assembler struct {
	// BudgetChars is the total ceiling for one assembled context.
	BudgetChars int

	// DescriptionMaxChars caps the task description. Generous; not
	// expected to bind on realistic descriptions.
	DescriptionMaxChars int

	// FileSnippetMaxChars caps each hint file's contribution. Zero
	// means no per-file cap; the total budget still binds.
	FileSnippetMaxChars int

	// DigestMaxChars caps each dependency digest.
	DigestMaxChars int
}

// New creates an Assembler from the budget configuration, with the total
// ceiling set per call site via WithBudget.
func New(budget config.BudgetConfig) *Assembler {
	return &Assembler{
		BudgetChars:         int(float64(budget.MaxContextTokens) * budget.CharsPerToken),
		DescriptionMaxChars: budget.DescriptionMaxChars,
		FileSnippetMaxChars: budget.FileSnippetMaxChars,
		DigestMaxChars:      budget.SummaryMaxChars,
	}
}

// WithBudget returns a copy of the assembler with a different total
// ceiling. Stage budgets differ but the per-fragment caps do not.
func (a *Assembler) WithBudget(chars int) *Assembler {
	cp := *a
	cp.BudgetChars = chars
	return &cp
}

// fragment separator, charged against the budget before every part
// after the first
const sep = "\n\n"

// Build produces the context text for one stage invocation. The result
// never exceeds the budget ceiling unless a retry context alone does, in
// which case the retry context is returned in full and everything else
// is dropped. A zero budget yields an empty string.
//
// Deterministic: identical task, stage, and run state produce identical
// output.
func (a *Assembler) Build(task *models.SubTask, stage models.Stage, run *Run) string {
	remaining := a.BudgetChars
	if remaining < 0 {
		remaining = 0
	}

	var b strings.Builder

	// cost returns the budget charge for appending a fragment,
	// including the separator if something precedes it.
	cost := func(n int) int {
		if b.Len() == 0 {
			return n
		}
		return n + len(sep)
	}
	write := func(s string) {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(s)
	}

	// Retry diagnostics go first and are never truncated. When they
	// alone exceed the ceiling, lower-priority fragments are dropped
	// and the ceiling is overridden: the correction signal is worth
	// more than the cap.
	if task.Retry != nil && stage == models.StageReason {
		rendered := task.Retry.Render()
		write(rendered)
		remaining -= len(rendered)
		if remaining <= 0 {
			return b.String()
		}
	}

	if remaining == 0 {
		return ""
	}

	if task.Description != "" {
		desc := task.Description
		if a.DescriptionMaxChars > 0 && len(desc) > a.DescriptionMaxChars {
			desc = desc[:a.DescriptionMaxChars]
		}
		prefix := "Task: "
		avail := remaining - cost(len(prefix))
		if avail > 0 {
			if len(desc) > avail {
				desc = desc[:avail]
			}
			remaining -= cost(len(prefix) + len(desc))
			write(prefix + desc)
		}
	}

	// Hint files in the order given. Once the budget runs out,
	// later files are omitted whole; only the file in progress is
	// truncated, keeping its earliest content.
	for _, path := range task.ContextHints {
		if remaining <= 0 {
			break
		}
		content, ok := run.Content(path)
		if !ok {
			continue
		}
		if a.FileSnippetMaxChars > 0 && len(content) > a.FileSnippetMaxChars {
			content = content[:a.FileSnippetMaxChars]
		}
		header := fmt.Sprintf("=== %s ===\n", path)
		avail := remaining - cost(len(header))
		if avail <= 0 {
			break
		}
		if len(content) > avail {
			content = content[:avail]
		}
		remaining -= cost(len(header) + len(content))
		write(header + content)
	}

	// Digests of completed dependencies, in dependency order.
	for _, dep := range task.DependsOn {
		if remaining <= 0 {
			break
		}
		digest, ok := run.Digest(dep)
		if !ok {
			continue
		}
		if a.DigestMaxChars > 0 && len(digest) > a.DigestMaxChars {
			digest = digest[:a.DigestMaxChars]
		}
		line := fmt.Sprintf("Earlier task %d: %s", dep, digest)
		if cost(len(line)) > remaining {
			continue
		}
		remaining -= cost(len(line))
		write(line)
	}

	return b.String()
}
