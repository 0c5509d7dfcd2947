package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/marcel/stitch/internal/assemble"
	"github.com/marcel/stitch/internal/models"
	"github.com/marcel/stitch/internal/session"
	"github.com/marcel/stitch/internal/skill"
	"github.com/marcel/stitch/internal/tools"
)

// skillSelect classifies the task against the skill catalog. When more
// than one capability applies and replan depth remains, the task is
// split into one narrowed task per capability and replaced in the plan;
// the return value signals the split. Classification errors degrade to
// the generic capability rather than failing the task.
func (c *Controller) skillSelect(ctx context.Context, plan *models.TaskPlan, task *models.SubTask) bool {
	c.log.Stage(task, models.StageSkillSelect)

	tags := []string{skill.GenericTag}
	prompt := fmt.Sprintf("Task: %s\n\nCapabilities:\n%s\nReply with a JSON array of the capability tags that apply. Pick as few as possible.",
		task.Description, c.skills.Catalog())
	out, err := c.session.Invoke(ctx, "You classify code-editing tasks against a capability list. Output JSON only.", prompt)
	if err != nil {
		c.log.Warnf("task %d skill classification failed, using %s: %v", task.ID, skill.GenericTag, err)
	} else {
		tags = c.skills.ParseSelection(out)
	}

	if len(tags) > 1 && task.ReplanDepth < c.cfg.Pipeline.MaxReplanDepth {
		c.log.Stage(task, models.StageReplan)
		var replacements []*models.SubTask
		for _, tag := range tags {
			s, _ := c.skills.Get(tag)
			replacements = append(replacements, &models.SubTask{
				Title:       fmt.Sprintf("%s (%s)", task.Title, tag),
				Description: fmt.Sprintf("%s\n\nScope: only the %s portion of this task.", task.Description, s.Description),
				SkillTags:   []string{tag},
			})
		}
		if err := plan.Rewrite(task.ID, replacements); err != nil {
			c.log.Warnf("task %d split rejected, continuing with %s: %v", task.ID, tags[0], err)
		} else {
			c.log.Infof("task %d split into %d tasks, one per capability", task.ID, len(replacements))
			return true
		}
	}

	// Single capability, or depth exhausted: the first tag wins.
	tag := tags[0]
	if len(task.SkillTags) == 1 {
		// A task produced by a split keeps its assigned capability.
		tag = task.SkillTags[0]
	}
	task.SkillTags = []string{tag}
	if s, ok := c.skills.Get(tag); ok {
		task.SkillPrompt = s.Prompt
	}
	return false
}

// rulesSelect attaches the rules relevant to this task. Deterministic,
// no model call.
func (c *Controller) rulesSelect(task *models.SubTask) {
	c.log.Stage(task, models.StageRulesSelect)
	selected := c.rules.Select(task.Description, maxRulesPerTask)
	task.RuleNames = task.RuleNames[:0]
	for _, r := range selected {
		task.RuleNames = append(task.RuleNames, r.Name)
	}
}

// toolSelect narrows the read-only tool allow-list for the reason
// stage. A small pool is passed through whole; a large one is narrowed
// in two stages (category, then tools within it) to keep the selection
// prompt bounded. Narrowing failures fall back to the full read-only
// pool, since this stage only optimizes the reason input.
func (c *Controller) toolSelect(ctx context.Context, task *models.SubTask) {
	c.log.Stage(task, models.StageToolSelect)

	readOnly := c.tools.ReadOnly()
	if c.tools.Len() <= c.cfg.Pipeline.ToolSelectThreshold {
		task.ToolNames = toolNames(readOnly)
		return
	}

	// Group the read-only pool by category; writable tools never reach
	// the reason stage.
	categories := make(map[tools.Category][]tools.Tool)
	var order []tools.Category
	for _, cat := range c.tools.Categories() {
		var pool []tools.Tool
		for _, t := range c.tools.InCategory(cat) {
			if t.ReadOnly {
				pool = append(pool, t)
			}
		}
		if len(pool) == 0 {
			continue
		}
		order = append(order, cat)
		categories[cat] = pool
	}
	if len(order) < 2 {
		task.ToolNames = toolNames(readOnly)
		return
	}

	// A planner tool hint naming a known category settles the choice
	// without a model call.
	if task.ToolHint != "" {
		for _, cat := range order {
			if string(cat) == task.ToolHint {
				task.ToolNames = toolNames(categories[cat])
				return
			}
		}
	}

	var catList strings.Builder
	for _, cat := range order {
		fmt.Fprintf(&catList, "- %s\n", cat)
	}
	prompt := fmt.Sprintf("Task: %s\n\nTool categories:\n%s\nReply with the single most useful category name.",
		task.Description, catList.String())
	out, err := c.session.Invoke(ctx, "You pick one tool category for a task. Output the category name only.", prompt)
	if err != nil {
		task.ToolNames = toolNames(readOnly)
		return
	}

	for _, cat := range order {
		if strings.Contains(strings.ToLower(out), string(cat)) {
			task.ToolNames = toolNames(categories[cat])
			return
		}
	}
	task.ToolNames = toolNames(readOnly)
}

func toolNames(pool []tools.Tool) []string {
	names := make([]string, 0, len(pool))
	for _, t := range pool {
		names = append(names, t.Name)
	}
	return names
}

// reason loops the model over the read-only tool allow-list until it
// produces a terminal edit plan. Tool results are folded into the file
// cache so later stages and tasks see what was read. Returns an error
// for transport failures, unparseable output, and round exhaustion; the
// caller charges all three against the retry budget.
func (c *Controller) reason(ctx context.Context, task *models.SubTask, run *assemble.Run) error {
	c.log.Stage(task, models.StageReason)

	asm := c.assembler.WithBudget(c.cfg.ReasonBudgetChars())
	prompt := asm.Build(task, models.StageReason, run)
	// The retry payload is consumed by exactly this assembly.
	task.Retry = nil

	allowed := make(map[string]bool, len(task.ToolNames))
	var pool []tools.Tool
	for _, name := range task.ToolNames {
		if t, ok := c.tools.Get(name); ok {
			allowed[name] = true
			pool = append(pool, t)
		}
	}

	system := c.reasonSystem(task, pool)
	resultCap := c.cfg.Budget.FileSnippetMaxChars
	if resultCap <= 0 {
		resultCap = 2000
	}

	for round := 0; round < c.cfg.Pipeline.MaxReadRounds; round++ {
		out, err := c.session.Invoke(ctx, system, prompt)
		if err != nil {
			return fmt.Errorf("reasoning invocation failed: %w", err)
		}

		if call, ok := session.ParseToolCall(out); ok {
			if !allowed[call.Name] {
				prompt += fmt.Sprintf("\n\nTool %q is not available. Use one of your listed tools or output the edit plan.", call.Name)
				continue
			}
			tool, _ := c.tools.Get(call.Name)
			result, terr := tool.Run(ctx, call.Args)
			if terr != nil {
				result = "error: " + terr.Error()
			} else if call.Name == "read_file" && call.Args["path"] != "" {
				c.cache.Put(call.Args["path"], result)
			}
			c.log.Debugf("task %d tool %s (%d chars returned)", task.ID, call.Name, len(result))
			prompt += fmt.Sprintf("\n\nTool %s returned:\n%s\n\nContinue: another tool call, or the final edit plan JSON.",
				call.Name, models.Preview(result, resultCap))
			continue
		}

		plan, perr := session.ParseEditPlan(out)
		if perr != nil {
			return fmt.Errorf("model output was not an edit plan: %w", perr)
		}
		task.EditPlan = plan
		return nil
	}
	return fmt.Errorf("no edit plan after %d tool rounds", c.cfg.Pipeline.MaxReadRounds)
}

// reasonSystem builds the reason-stage system prompt from the task's
// skill guidance, selected rules, and tool allow-list.
func (c *Controller) reasonSystem(task *models.SubTask, pool []tools.Tool) string {
	var b strings.Builder
	b.WriteString("You edit code by producing exact-match patches.\n\n")
	if task.SkillPrompt != "" {
		b.WriteString(task.SkillPrompt)
		b.WriteString("\n\n")
	}
	for _, name := range task.RuleNames {
		if r, ok := c.rules.Get(name); ok {
			b.WriteString(r.Body)
			b.WriteString("\n\n")
		}
	}
	if len(pool) > 0 {
		b.WriteString("Available tools (one call per reply, as JSON {\"tool\": \"name\", \"args\": {...}}):\n")
		b.WriteString(tools.Describe(pool))
		b.WriteString("\n")
	}
	b.WriteString(`When ready, output ONLY the edit plan JSON:
{"action": "patch", "summary": "...", "ops": [{"file": "path", "old": "exact current text", "new": "replacement"}]}
or {"action": "write", "file": "path", "content": "full file content"}
or {"action": "none", "summary": "why no change is needed"}.
Old strings must match the current file content exactly and uniquely.`)
	return b.String()
}

// summarize compresses the task's outcome into a short digest. This
// digest is the only artifact later tasks and the final answer receive.
// A model failure degrades to a deterministic digest.
func (c *Controller) summarize(ctx context.Context, task *models.SubTask) {
	c.log.Stage(task, models.StageSummarize)

	var detail string
	switch {
	case task.Status == models.StatusFailed:
		detail = "FAILED: " + task.VerifyMessage
	case task.EditPlan != nil:
		detail = task.EditPlan.Describe()
	default:
		detail = "completed with no edit plan"
	}

	digest := fmt.Sprintf("%s: %s", task.Title, detail)
	prompt := fmt.Sprintf("Task: %s\nOutcome: %s\n\nSummarize the outcome in one short factual line.", task.Description, detail)
	out, err := c.session.Invoke(ctx, "You write one-line task digests. No preamble.", prompt)
	if err != nil {
		c.log.Debugf("task %d summarizer failed, using deterministic digest: %v", task.ID, err)
	} else if trimmed := strings.TrimSpace(out); trimmed != "" {
		digest = trimmed
	}

	digest = strings.ReplaceAll(digest, "\n", " ")
	task.Digest = models.Preview(digest, c.cfg.Budget.SummaryMaxChars)
}
