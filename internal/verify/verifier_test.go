package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marcel/stitch/internal/models"
)

func fixed(files map[string]string) ContentFunc {
	return func(path string) string { return files[path] }
}

func TestVerifyPassesAfterCleanPatch(t *testing.T) {
	task := &models.SubTask{
		ID: 1,
		EditPlan: &models.EditPlan{
			Action: models.ActionPatch,
			Ops: []models.EditOp{
				{FilePath: "main.py", OldString: "print(1)", NewString: "logger.debug(1)"},
				{FilePath: "main.py", OldString: "print(2)", NewString: "logger.debug(2)"},
			},
		},
	}
	result := &models.PatchResult{Action: models.ActionPatch, Applied: 2}

	state, msg := New().Verify(task, result, fixed(map[string]string{
		"main.py": "logger.debug(1)\nlogger.debug(2)\n",
	}))
	assert.Equal(t, models.VerifyPassed, state, msg)
}

func TestVerifyFailsOnFailedIndex(t *testing.T) {
	task := &models.SubTask{
		ID:       1,
		EditPlan: &models.EditPlan{Action: models.ActionPatch, Ops: []models.EditOp{{FilePath: "a", OldString: "x", NewString: "y"}}},
	}
	result := &models.PatchResult{
		Action:      models.ActionPatch,
		FailedIndex: 1,
		Diagnostic:  "operation 1: string not found in a (file length 5); check whitespace and indentation",
	}

	state, msg := New().Verify(task, result, fixed(map[string]string{"a": "hello"}))
	assert.Equal(t, models.VerifyFailed, state)
	assert.Contains(t, msg, "not found")
}

func TestVerifyFailsWhenOldStringSurvives(t *testing.T) {
	task := &models.SubTask{
		ID: 1,
		EditPlan: &models.EditPlan{
			Action: models.ActionPatch,
			Ops:    []models.EditOp{{FilePath: "a.py", OldString: "print(9)", NewString: "log(9)"}},
		},
	}
	result := &models.PatchResult{Action: models.ActionPatch, Applied: 1}

	// Post-write content still carries the old string.
	state, msg := New().Verify(task, result, fixed(map[string]string{"a.py": "log(9)\nprint(9)\n"}))
	assert.Equal(t, models.VerifyFailed, state)
	assert.Contains(t, msg, "still occurs")
}

func TestVerifyToleratesOldStringInsideReplacement(t *testing.T) {
	// Appending keeps the old string as a prefix of the new one.
	task := &models.SubTask{
		ID: 1,
		EditPlan: &models.EditPlan{
			Action: models.ActionPatch,
			Ops:    []models.EditOp{{FilePath: "a.go", OldString: "import os", NewString: "import os\nimport sys"}},
		},
	}
	result := &models.PatchResult{Action: models.ActionPatch, Applied: 1}

	state, msg := New().Verify(task, result, fixed(map[string]string{"a.go": "import os\nimport sys\n"}))
	assert.Equal(t, models.VerifyPassed, state, msg)
}

func TestVerifyWrite(t *testing.T) {
	task := &models.SubTask{
		ID:       1,
		EditPlan: &models.EditPlan{Action: models.ActionWrite, FilePath: "new.go", Content: "package new\n\nfunc F() {}\n"},
	}
	result := &models.PatchResult{Action: models.ActionWrite, Applied: 1}

	state, _ := New().Verify(task, result, fixed(map[string]string{"new.go": "package new\n\nfunc F() {}\n"}))
	assert.Equal(t, models.VerifyPassed, state)

	state, msg := New().Verify(task, result, fixed(map[string]string{"new.go": "something else"}))
	assert.Equal(t, models.VerifyFailed, state)
	assert.Contains(t, msg, "not found")
}

func TestVerifyNonePlans(t *testing.T) {
	task := &models.SubTask{ID: 1, EditPlan: &models.EditPlan{Action: models.ActionNone, Summary: "read only"}}
	state, _ := New().Verify(task, &models.PatchResult{Action: models.ActionNone}, fixed(nil))
	assert.Equal(t, models.VerifyPassed, state)

	state, _ = New().Verify(task, nil, fixed(nil))
	assert.Equal(t, models.VerifyPassed, state)
}
