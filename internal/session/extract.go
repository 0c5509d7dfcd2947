package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marcel/stitch/internal/models"
)

// StripFences removes a surrounding markdown code fence, with or without
// a language tag. Text without a fence passes through unchanged.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.Index(trimmed, "\n"); i >= 0 {
		// drop the language tag line
		first := strings.TrimSpace(trimmed[:i])
		if first == "" || !strings.ContainsAny(first, "{}[]") {
			trimmed = trimmed[i+1:]
		}
	}
	if i := strings.LastIndex(trimmed, "```"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimSpace(trimmed)
}

// ExtractObject returns the first balanced JSON object in text. Models
// often wrap JSON in prose or fences; this recovers the payload.
func ExtractObject(text string) (string, bool) {
	return extractBalanced(StripFences(text), '{', '}')
}

// ExtractArray returns the first balanced JSON array in text.
func ExtractArray(text string) (string, bool) {
	return extractBalanced(StripFences(text), '[', ']')
}

func extractBalanced(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// toolCallPayload is the wire shape the reasoning prompt asks for.
type toolCallPayload struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args"`
}

// ParseToolCall interprets model output as a tool invocation of the form
// {"tool": "read_file", "args": {"path": "main.go"}}. Returns false when
// the text carries no such payload.
func ParseToolCall(text string) (*models.ToolCall, bool) {
	obj, ok := ExtractObject(text)
	if !ok {
		return nil, false
	}
	var payload toolCallPayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, false
	}
	if payload.Tool == "" {
		return nil, false
	}
	if payload.Args == nil {
		payload.Args = make(map[string]string)
	}
	return &models.ToolCall{Name: payload.Tool, Args: payload.Args}, true
}

// editPlanPayload is the wire shape for write-stage plans.
type editPlanPayload struct {
	Action  string `json:"action"`
	File    string `json:"file,omitempty"`
	Content string `json:"content,omitempty"`
	Summary string `json:"summary,omitempty"`
	Ops     []struct {
		File string `json:"file"`
		Old  string `json:"old"`
		New  string `json:"new"`
	} `json:"ops,omitempty"`
}

// ParseEditPlan interprets model output as an edit plan. Accepted
// actions: "patch" with an ops list, "write" with file and content,
// and "none" for tasks needing no file change.
func ParseEditPlan(text string) (*models.EditPlan, error) {
	obj, ok := ExtractObject(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var payload editPlanPayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, fmt.Errorf("malformed edit plan: %w", err)
	}

	plan := &models.EditPlan{
		Action:   models.Action(payload.Action),
		FilePath: payload.File,
		Content:  payload.Content,
		Summary:  payload.Summary,
	}
	for _, op := range payload.Ops {
		plan.Ops = append(plan.Ops, models.EditOp{
			FilePath:  op.File,
			OldString: op.Old,
			NewString: op.New,
		})
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}
