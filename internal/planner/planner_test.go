package planner

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcel/stitch/internal/models"
)

// fakeSession returns canned output and records the prompts it saw.
type fakeSession struct {
	output  string
	err     error
	prompts []string
}

func (f *fakeSession) Invoke(_ context.Context, system, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.output, f.err
}

func TestPlanParsesTasks(t *testing.T) {
	sess := &fakeSession{output: `Here is the plan:
` + "```json" + `
[
  {"id": 1, "title": "add helper", "description": "create util.go", "files": ["util.go"], "tool_hint": "file_read"},
  {"id": 2, "title": "use helper", "description": "call it from main", "files": ["main.go"], "depends_on": [1]}
]
` + "```"}

	p := &Planner{Session: sess, MaxSubtasks: 12}
	plan, err := p.Plan(context.Background(), "add a helper and use it", "main.go")
	require.NoError(t, err)

	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, 1, plan.Tasks[0].ID)
	assert.Equal(t, "add helper", plan.Tasks[0].Title)
	assert.Equal(t, []string{"util.go"}, plan.Tasks[0].ContextHints)
	assert.Equal(t, "file_read", plan.Tasks[0].ToolHint)
	assert.Equal(t, "", plan.Tasks[1].ToolHint)
	assert.Equal(t, models.StatusPending, plan.Tasks[0].Status)
	assert.Equal(t, []int{1}, plan.Tasks[1].DependsOn)
	assert.Equal(t, "add a helper and use it", plan.Request)
}

func TestPlanRenumbersIds(t *testing.T) {
	sess := &fakeSession{output: `[
  {"id": 7, "title": "first"},
  {"id": 9, "title": "second", "depends_on": [7]}
]`}

	p := &Planner{Session: sess}
	plan, err := p.Plan(context.Background(), "req", "")
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Tasks[0].ID)
	assert.Equal(t, 2, plan.Tasks[1].ID)
	assert.Equal(t, []int{1}, plan.Tasks[1].DependsOn)
}

func TestPlanDropsUnknownAndSelfDeps(t *testing.T) {
	sess := &fakeSession{output: `[
  {"id": 1, "title": "a", "depends_on": [1, 42]}
]`}

	p := &Planner{Session: sess}
	plan, err := p.Plan(context.Background(), "req", "")
	require.NoError(t, err)
	assert.Empty(t, plan.Tasks[0].DependsOn)
}

func TestPlanFallbackOnProse(t *testing.T) {
	sess := &fakeSession{output: "I think you should rename the function yourself."}

	p := &Planner{Session: sess}
	plan, err := p.Plan(context.Background(), "rename greet to hello", "")
	require.NoError(t, err)

	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, "rename greet to hello", plan.Tasks[0].Description)
}

func TestPlanFallbackOnEmptyArray(t *testing.T) {
	sess := &fakeSession{output: "[]"}

	p := &Planner{Session: sess}
	plan, err := p.Plan(context.Background(), "do the thing", "")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
}

func TestPlanTruncatesToCap(t *testing.T) {
	var tasks []string
	for i := 1; i <= 6; i++ {
		tasks = append(tasks, fmt.Sprintf(`{"id": %d, "title": "t%d"}`, i, i))
	}
	sess := &fakeSession{output: "[" + strings.Join(tasks, ",") + "]"}

	p := &Planner{Session: sess, MaxSubtasks: 3}
	plan, err := p.Plan(context.Background(), "req", "")
	require.NoError(t, err)
	assert.Len(t, plan.Tasks, 3)
}

func TestPlanDependencyOnDroppedTask(t *testing.T) {
	sess := &fakeSession{output: `[
  {"id": 1, "title": "a"},
  {"id": 2, "title": "b"},
  {"id": 3, "title": "c", "depends_on": [1]}
]`}

	p := &Planner{Session: sess, MaxSubtasks: 2}
	plan, err := p.Plan(context.Background(), "req", "")
	require.NoError(t, err)
	assert.Len(t, plan.Tasks, 2)
}

func TestPlanSessionError(t *testing.T) {
	sess := &fakeSession{err: fmt.Errorf("connection refused")}

	p := &Planner{Session: sess}
	_, err := p.Plan(context.Background(), "req", "")
	assert.Error(t, err)
}

func TestPlanEmptyRequest(t *testing.T) {
	p := &Planner{Session: &fakeSession{}}
	_, err := p.Plan(context.Background(), "  ", "")
	assert.Error(t, err)
}

func TestPlanListingTruncated(t *testing.T) {
	sess := &fakeSession{output: `[{"id": 1, "title": "a"}]`}

	p := &Planner{Session: sess, ListingMaxChars: 20}
	_, err := p.Plan(context.Background(), "req", strings.Repeat("f.go\n", 50))
	require.NoError(t, err)

	require.Len(t, sess.prompts, 1)
	assert.Contains(t, sess.prompts[0], "listing truncated")
}

func TestPlanCyclicGraphFails(t *testing.T) {
	sess := &fakeSession{output: `[
  {"id": 1, "title": "a", "depends_on": [2]},
  {"id": 2, "title": "b", "depends_on": [1]}
]`}

	p := &Planner{Session: sess}
	_, err := p.Plan(context.Background(), "req", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid task graph")
}
