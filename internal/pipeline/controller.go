// Package pipeline drives a TaskPlan to completion. The controller runs
// one subtask at a time through a fixed stage sequence, respecting
// dependency order, the per-task retry budget, and the context ceiling.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcel/stitch/internal/assemble"
	"github.com/marcel/stitch/internal/config"
	"github.com/marcel/stitch/internal/logger"
	"github.com/marcel/stitch/internal/models"
	"github.com/marcel/stitch/internal/patch"
	"github.com/marcel/stitch/internal/planner"
	"github.com/marcel/stitch/internal/rule"
	"github.com/marcel/stitch/internal/session"
	"github.com/marcel/stitch/internal/skill"
	"github.com/marcel/stitch/internal/tools"
	"github.com/marcel/stitch/internal/verify"
	"github.com/marcel/stitch/internal/workspace"
)

// maxRulesPerTask bounds how many rule documents one task's prompt
// carries.
const maxRulesPerTask = 3

// Controller sequences the pipeline stages for every subtask in a plan.
type Controller struct {
	cfg       *config.Config
	log       logger.Logger
	session   session.Session
	skills    *skill.Repo
	rules     *rule.Repo
	tools     *tools.Registry
	cache     *workspace.Cache
	engine    *patch.Engine
	verifier  *verify.Verifier
	assembler *assemble.Assembler
}

// Options carries the controller's collaborators. Session, Skills,
// Rules, and Tools are required; the rest default sensibly.
type Options struct {
	Config  *config.Config
	Log     logger.Logger
	Session session.Session
	Skills  *skill.Repo
	Rules   *rule.Repo
	Tools   *tools.Registry
	Cache   *workspace.Cache
}

// New creates a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("model session is required")
	}
	if opts.Skills == nil || opts.Rules == nil || opts.Tools == nil {
		return nil, fmt.Errorf("skill, rule, and tool repositories are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Log
	if log == nil {
		log = logger.NewNoOp()
	}
	cache := opts.Cache
	if cache == nil {
		cache = workspace.NewCache()
	}
	return &Controller{
		cfg:       cfg,
		log:       log,
		session:   opts.Session,
		skills:    opts.Skills,
		rules:     opts.Rules,
		tools:     opts.Tools,
		cache:     cache,
		engine:    patch.New(cfg.Workspace, cache),
		verifier:  verify.New(),
		assembler: assemble.New(cfg.Budget),
	}, nil
}

// Run plans the request against the current workspace and executes the
// resulting plan.
func (c *Controller) Run(ctx context.Context, request string) (*models.RunReport, error) {
	listing := "(workspace not scanned)"
	scan, err := workspace.Scan(c.cfg.Workspace, workspace.ScanOptions{
		ExcludeDirs: []string{"node_modules", "vendor"},
		MaxFiles:    200,
	})
	if err != nil {
		c.log.Warnf("workspace scan failed: %v", err)
	} else {
		listing = scan.Listing()
	}

	p := &planner.Planner{
		Session:         c.session,
		MaxSubtasks:     c.cfg.Pipeline.MaxSubtasks,
		ListingMaxChars: c.cfg.PlannerBudgetChars(),
	}
	plan, err := p.Plan(ctx, request, listing)
	if err != nil {
		return nil, err
	}
	c.log.Infof("planned %d task(s) for request", len(plan.Tasks))
	return c.Execute(ctx, plan)
}

// Execute drives a validated plan to a terminal state and returns the
// run report. Stage-local failures never abort the run; only an invalid
// dependency graph does.
func (c *Controller) Execute(ctx context.Context, plan *models.TaskPlan) (*models.RunReport, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &models.RunReport{RunID: uuid.NewString(), Request: plan.Request}
	run := &assemble.Run{Cache: c.cache, Plan: plan, Live: c.liveRead}

	for {
		task := nextPending(plan)
		if task == nil {
			break
		}
		if !plan.DepsDone(task) {
			// The next task in plan order is blocked. Halt and
			// finalize over what completed rather than reorder.
			c.log.Warnf("task %d has an unmet dependency, halting run", task.ID)
			report.HaltedEarly = true
			break
		}
		if c.runTask(ctx, plan, task, run) {
			// Task was split; re-select from the rewritten plan.
			continue
		}
	}

	for _, t := range plan.Tasks {
		outcome := models.TaskOutcome{
			ID:      t.ID,
			Title:   t.Title,
			Status:  t.Status,
			Digest:  t.Digest,
			Retries: t.RetryCount,
		}
		if t.Status == models.StatusFailed {
			outcome.Message = t.VerifyMessage
		}
		report.Outcomes = append(report.Outcomes, outcome)
		switch t.Status {
		case models.StatusDone:
			report.Done++
		case models.StatusFailed:
			report.Failed++
		}
	}
	report.Duration = time.Since(start)
	report.FinalAnswer = c.finalize(ctx, plan, report)
	c.log.RunSummary(report)
	return report, nil
}

// nextPending returns the first pending task in plan order.
func nextPending(plan *models.TaskPlan) *models.SubTask {
	for _, t := range plan.Tasks {
		if t.Status == models.StatusPending {
			return t
		}
	}
	return nil
}

// runTask advances one subtask to a terminal status. Returns true when
// skill classification split the task, in which case the task is gone
// from the plan and nothing else ran.
func (c *Controller) runTask(ctx context.Context, plan *models.TaskPlan, task *models.SubTask, run *assemble.Run) bool {
	task.Status = models.StatusInProgress
	c.log.TaskStart(task)

	if c.skillSelect(ctx, plan, task) {
		return true
	}
	c.rulesSelect(task)
	c.toolSelect(ctx, task)

	for {
		err := c.reason(ctx, task, run)
		if err != nil {
			// Model transport and format errors at the reason
			// stage consume retry budget exactly like a failed
			// verification.
			if task.RetryCount < c.cfg.Pipeline.RetryLimit {
				task.RetryCount++
				task.Retry = &models.RetryContext{FailureMessage: err.Error()}
				c.log.TaskRetry(task, err.Error())
				continue
			}
			task.Status = models.StatusFailed
			task.Verify = models.VerifyFailed
			task.VerifyMessage = err.Error()
			break
		}

		c.log.Stage(task, models.StageWrite)
		result := c.engine.Apply(task.EditPlan)
		task.WriteResult = &result

		c.log.Stage(task, models.StageVerify)
		state, msg := c.verifier.Verify(task, task.WriteResult, c.currentContent)
		task.Verify = state
		task.VerifyMessage = msg
		if state == models.VerifyPassed {
			task.Status = models.StatusDone
			break
		}
		if task.RetryCount < c.cfg.Pipeline.RetryLimit {
			task.RetryCount++
			task.Retry = c.buildRetryContext(task, msg)
			c.log.TaskRetry(task, msg)
			continue
		}
		task.Status = models.StatusFailed
		break
	}

	// Failed tasks are summarized too; their digest is how later
	// tasks and the final answer learn about the failure.
	c.summarize(ctx, task)
	c.log.TaskComplete(task)
	return false
}

// buildRetryContext captures the failed plan and the actual post-write
// content of the failing file.
func (c *Controller) buildRetryContext(task *models.SubTask, msg string) *models.RetryContext {
	rc := &models.RetryContext{
		FailedPlan:     task.EditPlan,
		FailureMessage: msg,
	}
	if task.WriteResult != nil {
		rc.FailedIndex = task.WriteResult.FailedIndex
		rc.FailedOldString = task.WriteResult.FailedOldString
	}

	var target string
	if task.WriteResult != nil && task.WriteResult.Failed() && task.EditPlan != nil &&
		task.WriteResult.FailedIndex <= len(task.EditPlan.Ops) {
		target = task.EditPlan.Ops[task.WriteResult.FailedIndex-1].FilePath
	} else if task.EditPlan != nil {
		if files := task.EditPlan.Files(); len(files) > 0 {
			target = files[0]
		}
	}
	if target != "" {
		rc.FileContent = c.currentContent(target)
	}
	return rc
}

// currentContent returns a file's current content, preferring the cache
// over disk. Missing files read as empty.
func (c *Controller) currentContent(path string) string {
	if content, ok := c.cache.Get(path); ok {
		return content
	}
	content, _ := c.liveRead(path)
	return content
}

func (c *Controller) liveRead(path string) (string, bool) {
	if c.cfg.Workspace == "" {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(c.cfg.Workspace, path))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// finalize composes the user-facing answer from the ordered digests.
// A model failure here degrades to the plain digest list; the run's
// outcome is already decided.
func (c *Controller) finalize(ctx context.Context, plan *models.TaskPlan, report *models.RunReport) string {
	var digests strings.Builder
	for _, o := range report.Outcomes {
		fmt.Fprintf(&digests, "- Task %d (%s, %s): %s\n", o.ID, o.Title, o.Status, o.Digest)
	}

	prompt := fmt.Sprintf("Request: %s\n\nTask outcomes:\n%s\nCompose a short answer to the user describing what was done and what failed, if anything.",
		plan.Request, digests.String())
	out, err := c.session.Invoke(ctx, "You report the outcome of code changes. Be brief and factual.", prompt)
	if err != nil {
		c.log.Warnf("finalizer invocation failed: %v", err)
		return report.Summary() + "\n" + digests.String()
	}
	return strings.TrimSpace(out)
}
