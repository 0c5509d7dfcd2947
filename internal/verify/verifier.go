// Package verify confirms that a subtask's edit plan is observably
// satisfied after the patch engine ran.
package verify

import (
	"fmt"
	"strings"

	"github.com/marcel/stitch/internal/models"
)

// ContentFunc returns the current content of a workspace path. The
// verifier reads through it so tests can supply fixtures and the pipeline
// can supply the file cache.
type ContentFunc func(path string) string

// Verifier checks post-write file state against an edit plan's intent.
type Verifier struct{}

// New creates a Verifier.
func New() *Verifier {
	return &Verifier{}
}

// Verify inspects the patch result and live content and decides whether
// the subtask's write landed. The returned message is specific enough to
// drive a retry: it names what is still present that should not be, or
// absent that should be.
func (v *Verifier) Verify(task *models.SubTask, result *models.PatchResult, content ContentFunc) (models.VerifyState, string) {
	if result == nil {
		return models.VerifyPassed, "no write performed"
	}

	// Any operation that failed to apply fails verification outright.
	if result.Failed() {
		return models.VerifyFailed, result.Diagnostic
	}

	plan := task.EditPlan
	if plan == nil || plan.Action == models.ActionNone {
		return models.VerifyPassed, "no file changes needed"
	}

	switch plan.Action {
	case models.ActionWrite:
		return v.verifyWrite(plan, content)
	case models.ActionPatch:
		return v.verifyPatch(plan, content)
	default:
		return models.VerifyFailed, fmt.Sprintf("unknown edit plan action %q", plan.Action)
	}
}

func (v *Verifier) verifyWrite(plan *models.EditPlan, content ContentFunc) (models.VerifyState, string) {
	actual := content(plan.FilePath)
	fragment := plan.Content
	if len(fragment) > 80 {
		fragment = fragment[:80]
	}
	if fragment != "" && !strings.Contains(actual, fragment) {
		return models.VerifyFailed, fmt.Sprintf("written content not found in %s", plan.FilePath)
	}
	return models.VerifyPassed, fmt.Sprintf("content present in %s", plan.FilePath)
}

func (v *Verifier) verifyPatch(plan *models.EditPlan, content ContentFunc) (models.VerifyState, string) {
	var stale []string   // operations whose old string survives
	var missing []string // operations whose new string never landed

	for i, op := range plan.Ops {
		actual := content(op.FilePath)

		// An old string that is a substring of its replacement legitimately
		// survives the edit; only count survivors outside that case.
		oldCount := strings.Count(actual, op.OldString)
		expectOld := strings.Count(op.NewString, op.OldString)
		if oldCount > expectOld {
			stale = append(stale, fmt.Sprintf("operation %d: old string %q still occurs %d time(s) in %s",
				i+1, models.Preview(op.OldString, 60), oldCount-expectOld, op.FilePath))
			continue
		}
		if op.NewString != "" && !strings.Contains(actual, op.NewString) {
			missing = append(missing, fmt.Sprintf("operation %d: new string %q absent from %s",
				i+1, models.Preview(op.NewString, 60), op.FilePath))
		}
	}

	if len(stale) > 0 || len(missing) > 0 {
		return models.VerifyFailed, strings.Join(append(stale, missing...), "; ")
	}
	return models.VerifyPassed, fmt.Sprintf("%d operation(s) verified in %s", len(plan.Ops), strings.Join(plan.Files(), ", "))
}
