// Package planner turns a natural-language change request into an
// ordered TaskPlan by invoking the model once over a compact workspace
// listing.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marcel/stitch/internal/models"
	"github.com/marcel/stitch/internal/session"
)

const systemPrompt = `You are a planning assistant for a code-editing pipeline.
Break the user's request into small, independent subtasks. Output ONLY a
JSON array, no prose. Each element:
{"id": 1, "title": "short name", "description": "what to do and where",
 "files": ["relevant/path.go"], "depends_on": [], "tool_hint": ""}
Use depends_on to order subtasks that build on each other's output.
Set tool_hint to "file_read", "code_search", or "shell" when one kind of
tool is clearly the right starting point, else leave it empty.
Prefer few tasks; one is fine for a simple request.`

// Planner produces a TaskPlan for a request.
type Planner struct {
	Session session.Session

	// MaxSubtasks truncates oversized plans; excess tasks are dropped
	// along with dependencies on them.
	MaxSubtasks int

	// ListingMaxChars bounds the workspace listing included in the
	// planning prompt.
	ListingMaxChars int
}

type taskPayload struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
	DependsOn   []int    `json:"depends_on"`
	ToolHint    string   `json:"tool_hint"`
}

// Plan invokes the model and parses its output into a validated
// TaskPlan. Unparseable output degrades to a single task carrying the
// whole request; an invalid dependency graph is an error and aborts the
// run, since no downstream stage can repair it.
func (p *Planner) Plan(ctx context.Context, request, listing string) (*models.TaskPlan, error) {
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("request cannot be empty")
	}

	if p.ListingMaxChars > 0 && len(listing) > p.ListingMaxChars {
		listing = listing[:p.ListingMaxChars] + "\n... (listing truncated)"
	}

	prompt := fmt.Sprintf("Workspace files:\n%s\n\nRequest: %s", listing, request)
	output, err := p.Session.Invoke(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("planning invocation failed: %w", err)
	}

	plan := p.parse(output, request)
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("planner produced an invalid task graph: %w", err)
	}
	return plan, nil
}

// parse decodes the model output, falling back to a single task when
// nothing usable comes back.
func (p *Planner) parse(output, request string) *models.TaskPlan {
	arr, ok := session.ExtractArray(output)
	if !ok {
		return p.fallback(request)
	}
	var payloads []taskPayload
	if err := json.Unmarshal([]byte(arr), &payloads); err != nil || len(payloads) == 0 {
		return p.fallback(request)
	}

	if p.MaxSubtasks > 0 && len(payloads) > p.MaxSubtasks {
		payloads = payloads[:p.MaxSubtasks]
	}

	// Renumber sequentially; models repeat or omit ids often enough
	// that trusting them is not worth it.
	idMap := make(map[int]int, len(payloads))
	for i, t := range payloads {
		if t.ID != 0 {
			idMap[t.ID] = i + 1
		}
	}

	plan := &models.TaskPlan{Request: request}
	for i, t := range payloads {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			title = fmt.Sprintf("subtask %d", i+1)
		}
		desc := strings.TrimSpace(t.Description)
		if desc == "" {
			desc = title
		}
		var deps []int
		for _, d := range t.DependsOn {
			mapped, known := idMap[d]
			if !known || mapped == i+1 {
				continue
			}
			deps = append(deps, mapped)
		}
		plan.Tasks = append(plan.Tasks, &models.SubTask{
			ID:           i + 1,
			Title:        title,
			Description:  desc,
			ContextHints: t.Files,
			DependsOn:    deps,
			ToolHint:     strings.TrimSpace(t.ToolHint),
			Status:       models.StatusPending,
		})
	}
	return plan
}

func (p *Planner) fallback(request string) *models.TaskPlan {
	return &models.TaskPlan{
		Request: request,
		Tasks: []*models.SubTask{{
			ID:          1,
			Title:       "apply requested change",
			Description: request,
			Status:      models.StatusPending,
		}},
	}
}
