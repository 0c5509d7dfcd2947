package assemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcel/stitch/internal/models"
	"github.com/marcel/stitch/internal/workspace"
)

func newRun(files map[string]string, plan *models.TaskPlan) *Run {
	cache := workspace.NewCache()
	for p, c := range files {
		cache.Put(p, c)
	}
	return &Run{Cache: cache, Plan: plan}
}

func TestBuildIncludesDescriptionAndFiles(t *testing.T) {
	a := &Assembler{BudgetChars: 500, DigestMaxChars: 100}
	task := &models.SubTask{
		ID:           1,
		Description:  "rename the greeting function",
		ContextHints: []string{"main.go"},
	}
	run := newRun(map[string]string{"main.go": "package main\n\nfunc greet() {}\n"}, nil)

	out := a.Build(task, models.StageReason, run)

	assert.Contains(t, out, "Task: rename the greeting function")
	assert.Contains(t, out, "=== main.go ===")
	assert.Contains(t, out, "func greet()")
}

func TestBuildNeverExceedsCeiling(t *testing.T) {
	long := strings.Repeat("x", 400)
	files := map[string]string{"a.go": long, "b.go": long, "c.go": long}
	plan := &models.TaskPlan{Tasks: []*models.SubTask{
		{ID: 1, Title: "dep", Digest: strings.Repeat("d", 200)},
	}}
	task := &models.SubTask{
		ID:           2,
		Description:  strings.Repeat("y", 300),
		ContextHints: []string{"a.go", "b.go", "c.go"},
		DependsOn:    []int{1},
	}

	for _, budget := range []int{0, 1, 10, 50, 100, 333, 1000, 5000} {
		a := &Assembler{BudgetChars: budget, DigestMaxChars: 100}
		out := a.Build(task, models.StageReason, newRun(files, plan))
		assert.LessOrEqual(t, len(out), budget, "budget %d", budget)
	}
}

func TestBuildZeroBudgetEmpty(t *testing.T) {
	a := &Assembler{BudgetChars: 0}
	task := &models.SubTask{ID: 1, Description: "anything", ContextHints: []string{"a.go"}}
	run := newRun(map[string]string{"a.go": "content"}, nil)

	assert.Equal(t, "", a.Build(task, models.StageReason, run))
}

func TestRetryContextOverridesCeiling(t *testing.T) {
	retry := &models.RetryContext{
		FailureMessage:  "string not found",
		FileContent:     strings.Repeat("z", 200),
		FailedIndex:     1,
		FailedOldString: "old",
	}
	rendered := retry.Render()
	require.Greater(t, len(rendered), 50)

	a := &Assembler{BudgetChars: 50}
	task := &models.SubTask{
		ID:           1,
		Description:  "should be dropped",
		ContextHints: []string{"a.go"},
		Retry:        retry,
	}
	run := newRun(map[string]string{"a.go": "file body"}, nil)

	out := a.Build(task, models.StageReason, run)

	assert.Equal(t, rendered, out, "over-budget retry context is included alone, in full")
	assert.NotContains(t, out, "should be dropped")
	assert.NotContains(t, out, "file body")
}

func TestRetryContextOnlyAtReason(t *testing.T) {
	retry := &models.RetryContext{FailureMessage: "boom"}
	a := &Assembler{BudgetChars: 500}
	task := &models.SubTask{ID: 1, Description: "summarize it", Retry: retry}

	out := a.Build(task, models.StageSummarize, newRun(nil, nil))

	assert.NotContains(t, out, "boom")
	assert.Contains(t, out, "summarize it")
}

func TestLaterFilesOmittedWhole(t *testing.T) {
	files := map[string]string{
		"first.go":  strings.Repeat("a", 100),
		"second.go": strings.Repeat("b", 100),
	}
	task := &models.SubTask{
		ID:           1,
		ContextHints: []string{"first.go", "second.go"},
	}

	// budget fits the first file truncated but leaves no room for the
	// second file's header
	a := &Assembler{BudgetChars: 80}
	out := a.Build(task, models.StageReason, newRun(files, nil))

	assert.Contains(t, out, "=== first.go ===")
	assert.NotContains(t, out, "second.go")
	assert.LessOrEqual(t, len(out), 80)
}

func TestOversizedFileKeepsEarliestContent(t *testing.T) {
	content := "HEADER" + strings.Repeat("-", 500) + "TAIL"
	task := &models.SubTask{ID: 1, ContextHints: []string{"big.go"}}

	a := &Assembler{BudgetChars: 60}
	out := a.Build(task, models.StageReason, newRun(map[string]string{"big.go": content}, nil))

	assert.Contains(t, out, "HEADER")
	assert.NotContains(t, out, "TAIL")
}

func TestPerFileCap(t *testing.T) {
	content := strings.Repeat("q", 300)
	task := &models.SubTask{ID: 1, ContextHints: []string{"a.go"}}

	a := &Assembler{BudgetChars: 1000, FileSnippetMaxChars: 50}
	out := a.Build(task, models.StageReason, newRun(map[string]string{"a.go": content}, nil))

	assert.Equal(t, 50, strings.Count(out, "q"))
}

func TestZeroPerFileCapDefersToBudget(t *testing.T) {
	content := strings.Repeat("q", 300)
	task := &models.SubTask{ID: 1, ContextHints: []string{"a.go"}}

	a := &Assembler{BudgetChars: 1000, FileSnippetMaxChars: 0}
	out := a.Build(task, models.StageReason, newRun(map[string]string{"a.go": content}, nil))

	assert.Equal(t, 300, strings.Count(out, "q"))
}

func TestDependencyDigests(t *testing.T) {
	plan := &models.TaskPlan{Tasks: []*models.SubTask{
		{ID: 1, Digest: "created util.go with a helper"},
		{ID: 2, Digest: strings.Repeat("long digest ", 50)},
	}}
	task := &models.SubTask{ID: 3, Description: "wire it up", DependsOn: []int{1, 2}}

	a := &Assembler{BudgetChars: 600, DigestMaxChars: 40}
	out := a.Build(task, models.StageReason, newRun(nil, plan))

	assert.Contains(t, out, "Earlier task 1: created util.go with a helper")
	assert.Contains(t, out, "Earlier task 2: ")
	// second digest is capped
	idx := strings.Index(out, "Earlier task 2: ")
	require.GreaterOrEqual(t, idx, 0)
	assert.LessOrEqual(t, len(out)-idx, len("Earlier task 2: ")+40)
}

func TestMissingFilesAndDigestsSkipped(t *testing.T) {
	plan := &models.TaskPlan{Tasks: []*models.SubTask{{ID: 1}}} // no digest yet
	task := &models.SubTask{
		ID:           2,
		Description:  "desc",
		ContextHints: []string{"ghost.go"},
		DependsOn:    []int{1},
	}

	a := &Assembler{BudgetChars: 500}
	out := a.Build(task, models.StageReason, newRun(nil, plan))

	assert.Equal(t, "Task: desc", out)
}

func TestBuildDeterministic(t *testing.T) {
	files := map[string]string{"a.go": "alpha", "b.go": "beta"}
	task := &models.SubTask{ID: 1, Description: "d", ContextHints: []string{"a.go", "b.go"}}
	a := &Assembler{BudgetChars: 200}

	first := a.Build(task, models.StageReason, newRun(files, nil))
	second := a.Build(task, models.StageReason, newRun(files, nil))

	assert.Equal(t, first, second)
}

func TestLiveFallback(t *testing.T) {
	run := &Run{
		Cache: workspace.NewCache(),
		Live: func(path string) (string, bool) {
			if path == "disk.go" {
				return "from disk", true
			}
			return "", false
		},
	}
	run.Cache.Put("cached.go", "from cache")

	task := &models.SubTask{ID: 1, ContextHints: []string{"cached.go", "disk.go"}}
	a := &Assembler{BudgetChars: 200}
	out := a.Build(task, models.StageReason, run)

	assert.Contains(t, out, "from cache")
	assert.Contains(t, out, "from disk")
}

func TestWithBudget(t *testing.T) {
	a := &Assembler{BudgetChars: 100, DigestMaxChars: 10}
	b := a.WithBudget(7)

	assert.Equal(t, 100, a.BudgetChars)
	assert.Equal(t, 7, b.BudgetChars)
	assert.Equal(t, 10, b.DigestMaxChars)
}
