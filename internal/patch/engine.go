// Package patch applies edit plans mechanically: ordered exact-match
// replacements with fail-fast, prefix-persisting semantics. No model is
// involved at this layer.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcel/stitch/internal/filelock"
	"github.com/marcel/stitch/internal/models"
	"github.com/marcel/stitch/internal/workspace"
)

// DefaultPreviewLen bounds the old-string preview carried in diagnostics.
const DefaultPreviewLen = 80

// Engine applies edit plans to the file cache and, when a workspace root
// is configured, persists results to disk atomically. Operations are
// applied strictly in order; each operation sees the output of the
// previous one on the same file. The first failure stops the plan, and
// every operation that already succeeded stays applied.
type Engine struct {
	root       string // workspace root; empty means cache-only (tests)
	cache      *workspace.Cache
	previewLen int
}

// New creates an engine over the given cache. root may be empty to skip
// disk persistence.
func New(root string, cache *workspace.Cache) *Engine {
	return &Engine{root: root, cache: cache, previewLen: DefaultPreviewLen}
}

// Apply runs the edit plan and reports the outcome. It never returns an
// error: match failures are data, captured in the result for the verifier
// and the retry loop.
func (e *Engine) Apply(plan *models.EditPlan) models.PatchResult {
	result := models.PatchResult{Action: plan.Action}

	if err := plan.Validate(); err != nil {
		result.FailedIndex = 1
		result.Diagnostic = fmt.Sprintf("invalid edit plan: %v", err)
		return result
	}

	switch plan.Action {
	case models.ActionNone:
		return result
	case models.ActionWrite:
		return e.applyWrite(plan)
	case models.ActionPatch:
		return e.applyPatch(plan)
	}
	result.FailedIndex = 1
	result.Diagnostic = fmt.Sprintf("unknown action %q", plan.Action)
	return result
}

func (e *Engine) applyWrite(plan *models.EditPlan) models.PatchResult {
	result := models.PatchResult{Action: models.ActionWrite}
	if err := e.persist(plan.FilePath, plan.Content); err != nil {
		result.FailedIndex = 1
		result.FileLength = len(plan.Content)
		result.Diagnostic = fmt.Sprintf("operation 1: %v", err)
		return result
	}
	e.cache.Put(plan.FilePath, plan.Content)
	result.Applied = 1
	result.Files = []string{plan.FilePath}
	return result
}

func (e *Engine) applyPatch(plan *models.EditPlan) models.PatchResult {
	result := models.PatchResult{Action: models.ActionPatch}
	touched := make(map[string]bool)

	for i, op := range plan.Ops {
		index := i + 1 // diagnostics are 1-based

		content, err := e.load(op.FilePath)
		if err != nil {
			result.FailedIndex = index
			result.FailedOldString = models.Preview(op.OldString, e.previewLen)
			result.Diagnostic = fmt.Sprintf("operation %d: %v", index, err)
			return result
		}

		count := strings.Count(content, op.OldString)
		switch {
		case count == 0:
			result.FailedIndex = index
			result.FailedOldString = models.Preview(op.OldString, e.previewLen)
			result.FileLength = len(content)
			result.Diagnostic = fmt.Sprintf(
				"operation %d: string %q not found in %s (file length %d); check whitespace and indentation",
				index, models.Preview(op.OldString, e.previewLen), op.FilePath, len(content))
			return result
		case count > 1:
			result.FailedIndex = index
			result.FailedOldString = models.Preview(op.OldString, e.previewLen)
			result.FileLength = len(content)
			result.Diagnostic = fmt.Sprintf(
				"operation %d: string %q occurs %d times in %s (file length %d); make the old string unique",
				index, models.Preview(op.OldString, e.previewLen), count, op.FilePath, len(content))
			return result
		}

		updated := strings.Replace(content, op.OldString, op.NewString, 1)
		if err := e.persist(op.FilePath, updated); err != nil {
			result.FailedIndex = index
			result.FailedOldString = models.Preview(op.OldString, e.previewLen)
			result.FileLength = len(content)
			result.Diagnostic = fmt.Sprintf("operation %d: %v", index, err)
			return result
		}
		e.cache.Put(op.FilePath, updated)
		result.Applied++
		if !touched[op.FilePath] {
			touched[op.FilePath] = true
			result.Files = append(result.Files, op.FilePath)
		}
	}
	return result
}

// load returns the current working content of path: the cache entry if
// present, otherwise the live file.
func (e *Engine) load(path string) (string, error) {
	if content, ok := e.cache.Get(path); ok {
		return content, nil
	}
	if e.root == "" {
		return "", fmt.Errorf("file not found in cache: %s", path)
	}
	data, err := os.ReadFile(filepath.Join(e.root, path))
	if err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}
	return string(data), nil
}

func (e *Engine) persist(path, content string) error {
	if e.root == "" {
		return nil
	}
	if err := filelock.AtomicWrite(filepath.Join(e.root, path), []byte(content)); err != nil {
		return fmt.Errorf("failed to persist %s: %w", path, err)
	}
	return nil
}
