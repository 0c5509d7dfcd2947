package models

import (
	"fmt"
)

// TaskPlan is the ordered, dependency-annotated list of subtasks for one
// run. Membership is fixed after validation except through Rewrite, which
// is the only sanctioned plan mutation.
type TaskPlan struct {
	Request string     // Original user request
	Tasks   []*SubTask // Ordered subtasks
}

// Validate checks that ids are unique and positive, every dependency
// references a known task, and the dependency graph is acyclic.
func (p *TaskPlan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}
	ids := make(map[int]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate subtask id %d", t.ID)
		}
		ids[t.ID] = true
	}
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("subtask %d depends on unknown id %d", t.ID, dep)
			}
		}
	}
	if HasCyclicDependencies(p.Tasks) {
		return fmt.Errorf("dependency cycle detected in plan")
	}
	return nil
}

// Task returns the subtask with the given id, or nil.
func (p *TaskPlan) Task(id int) *SubTask {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// MaxID returns the highest subtask id in the plan.
func (p *TaskPlan) MaxID() int {
	max := 0
	for _, t := range p.Tasks {
		if t.ID > max {
			max = t.ID
		}
	}
	return max
}

// DepsDone reports whether every dependency of t has status done.
func (p *TaskPlan) DepsDone(t *SubTask) bool {
	for _, dep := range t.DependsOn {
		d := p.Task(dep)
		if d == nil || d.Status != StatusDone {
			return false
		}
	}
	return true
}

// Rewrite replaces the subtask with the given id by the provided
// replacements, in place. Replacements receive fresh ids above the current
// maximum, inherit the original task's dependencies and context hints when
// they carry none, and record the original id as their lineage. The rewrite
// is rejected if it would break plan validity.
func (p *TaskPlan) Rewrite(id int, replacements []*SubTask) error {
	if len(replacements) == 0 {
		return fmt.Errorf("rewrite of subtask %d with no replacements", id)
	}
	pos := -1
	for i, t := range p.Tasks {
		if t.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("rewrite of unknown subtask id %d", id)
	}
	orig := p.Tasks[pos]

	next := p.MaxID()
	for _, r := range replacements {
		next++
		r.ID = next
		r.ParentID = orig.ID
		r.ReplanDepth = orig.ReplanDepth + 1
		r.Status = StatusPending
		if len(r.DependsOn) == 0 {
			r.DependsOn = append([]int(nil), orig.DependsOn...)
		}
		if len(r.ContextHints) == 0 {
			r.ContextHints = append([]string(nil), orig.ContextHints...)
		}
	}

	rewritten := make([]*SubTask, 0, len(p.Tasks)-1+len(replacements))
	rewritten = append(rewritten, p.Tasks[:pos]...)
	rewritten = append(rewritten, replacements...)
	rewritten = append(rewritten, p.Tasks[pos+1:]...)

	// Any task that depended on the original now depends on all replacements.
	for _, t := range rewritten {
		for i, dep := range t.DependsOn {
			if dep == orig.ID {
				deps := append([]int(nil), t.DependsOn[:i]...)
				for _, r := range replacements {
					deps = append(deps, r.ID)
				}
				deps = append(deps, t.DependsOn[i+1:]...)
				t.DependsOn = deps
				break
			}
		}
	}

	candidate := &TaskPlan{Request: p.Request, Tasks: rewritten}
	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("rewrite of subtask %d produced invalid plan: %w", id, err)
	}
	p.Tasks = rewritten
	return nil
}

// HasCyclicDependencies detects circular dependencies using DFS with color
// marking (white=unvisited, gray=visiting, black=visited).
func HasCyclicDependencies(tasks []*SubTask) bool {
	graph := make(map[int][]int)
	known := make(map[int]bool)
	for _, t := range tasks {
		known[t.ID] = true
		graph[t.ID] = nil
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return true
			}
			if known[dep] {
				graph[dep] = append(graph[dep], t.ID)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[int]int, len(known))

	var dfs func(int) bool
	dfs = func(node int) bool {
		colors[node] = gray
		for _, next := range graph[node] {
			if colors[next] == gray {
				return true
			}
			if colors[next] == white && dfs(next) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for id := range known {
		if colors[id] == white && dfs(id) {
			return true
		}
	}
	return false
}
