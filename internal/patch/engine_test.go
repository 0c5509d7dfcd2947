package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcel/stitch/internal/models"
	"github.com/marcel/stitch/internal/workspace"
)

func newEngine(t *testing.T, files map[string]string) (*Engine, *workspace.Cache) {
	t.Helper()
	cache := workspace.NewCache()
	for path, content := range files {
		cache.Put(path, content)
	}
	return New("", cache), cache
}

func TestApplyPatchAllOps(t *testing.T) {
	eng, cache := newEngine(t, map[string]string{
		"main.py": "print(1)\nprint(2)\n",
	})

	result := eng.Apply(&models.EditPlan{
		Action: models.ActionPatch,
		Ops: []models.EditOp{
			{FilePath: "main.py", OldString: "print(1)", NewString: "logger.debug(1)"},
			{FilePath: "main.py", OldString: "print(2)", NewString: "logger.debug(2)"},
		},
	})

	assert.Equal(t, 2, result.Applied)
	assert.False(t, result.Failed())
	assert.Equal(t, []string{"main.py"}, result.Files)

	content, _ := cache.Get("main.py")
	assert.Equal(t, "logger.debug(1)\nlogger.debug(2)\n", content)
}

func TestApplyPatchStringAbsent(t *testing.T) {
	original := "print(1)\nprint(2)\n"
	eng, cache := newEngine(t, map[string]string{"main.py": original})

	result := eng.Apply(&models.EditPlan{
		Action: models.ActionPatch,
		Ops:    []models.EditOp{{FilePath: "main.py", OldString: "print(3)", NewString: "logger.debug(3)"}},
	})

	assert.Equal(t, 1, result.FailedIndex)
	assert.Equal(t, 0, result.Applied)
	assert.Contains(t, result.Diagnostic, "print(3)")
	assert.Contains(t, result.Diagnostic, "not found")
	assert.Equal(t, len(original), result.FileLength)

	content, _ := cache.Get("main.py")
	assert.Equal(t, original, content, "file content must be unchanged")
}

func TestApplyPatchAmbiguousDistinctFromMissing(t *testing.T) {
	eng, _ := newEngine(t, map[string]string{"a.go": "x = 1\nx = 1\n"})

	result := eng.Apply(&models.EditPlan{
		Action: models.ActionPatch,
		Ops:    []models.EditOp{{FilePath: "a.go", OldString: "x = 1", NewString: "x = 2"}},
	})

	assert.Equal(t, 1, result.FailedIndex)
	assert.Contains(t, result.Diagnostic, "occurs 2 times")
	assert.Contains(t, result.Diagnostic, "x = 1")
	assert.NotContains(t, result.Diagnostic, "not found")
}

func TestApplyPatchStopsAtFirstFailure(t *testing.T) {
	eng, cache := newEngine(t, map[string]string{"a.txt": "one two three"})

	result := eng.Apply(&models.EditPlan{
		Action: models.ActionPatch,
		Ops: []models.EditOp{
			{FilePath: "a.txt", OldString: "one", NewString: "1"},
			{FilePath: "a.txt", OldString: "missing", NewString: "x"},
			{FilePath: "a.txt", OldString: "three", NewString: "3"},
		},
	})

	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 2, result.FailedIndex)

	// Operation 1 persisted, operations 2-3 not attempted.
	content, _ := cache.Get("a.txt")
	assert.Equal(t, "1 two three", content)
}

func TestApplyPatchIdempotentFailure(t *testing.T) {
	plan := &models.EditPlan{
		Action: models.ActionPatch,
		Ops:    []models.EditOp{{FilePath: "a.txt", OldString: "absent", NewString: "x"}},
	}

	eng, _ := newEngine(t, map[string]string{"a.txt": "hello"})
	first := eng.Apply(plan)
	second := eng.Apply(plan)

	assert.Equal(t, first.FailedIndex, second.FailedIndex)
	assert.Equal(t, first.Diagnostic, second.Diagnostic)
	assert.Equal(t, first.FileLength, second.FileLength)
}

func TestApplyPatchSequentialOnSameFile(t *testing.T) {
	// The second operation matches text created by the first.
	eng, cache := newEngine(t, map[string]string{"a.txt": "alpha"})

	result := eng.Apply(&models.EditPlan{
		Action: models.ActionPatch,
		Ops: []models.EditOp{
			{FilePath: "a.txt", OldString: "alpha", NewString: "beta"},
			{FilePath: "a.txt", OldString: "beta", NewString: "gamma"},
		},
	})

	assert.Equal(t, 2, result.Applied)
	content, _ := cache.Get("a.txt")
	assert.Equal(t, "gamma", content)
}

func TestApplyWrite(t *testing.T) {
	root := t.TempDir()
	cache := workspace.NewCache()
	eng := New(root, cache)

	result := eng.Apply(&models.EditPlan{
		Action:   models.ActionWrite,
		FilePath: "pkg/new.go",
		Content:  "package pkg\n",
	})

	assert.Equal(t, 1, result.Applied)
	assert.False(t, result.Failed())

	cached, ok := cache.Get("pkg/new.go")
	require.True(t, ok)
	assert.Equal(t, "package pkg\n", cached)

	data, err := os.ReadFile(filepath.Join(root, "pkg", "new.go"))
	require.NoError(t, err)
	assert.Equal(t, "package pkg\n", string(data))
}

func TestApplyNone(t *testing.T) {
	eng, _ := newEngine(t, nil)
	result := eng.Apply(&models.EditPlan{Action: models.ActionNone, Summary: "research only"})
	assert.Equal(t, 0, result.Applied)
	assert.False(t, result.Failed())
}

func TestApplyReadsLiveFileWhenNotCached(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("old text"), 0o644))

	cache := workspace.NewCache()
	eng := New(root, cache)

	result := eng.Apply(&models.EditPlan{
		Action: models.ActionPatch,
		Ops:    []models.EditOp{{FilePath: "f.txt", OldString: "old", NewString: "new"}},
	})

	require.False(t, result.Failed(), result.Diagnostic)
	data, _ := os.ReadFile(filepath.Join(root, "f.txt"))
	assert.Equal(t, "new text", string(data))
	cached, _ := cache.Get("f.txt")
	assert.Equal(t, "new text", cached)
}

func TestApplyInvalidPlan(t *testing.T) {
	eng, _ := newEngine(t, nil)
	result := eng.Apply(&models.EditPlan{Action: models.ActionPatch})
	assert.True(t, result.Failed())
	assert.Contains(t, result.Diagnostic, "invalid edit plan")
}
