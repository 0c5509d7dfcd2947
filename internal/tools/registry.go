// Package tools defines the callable-tool registry the pipeline narrows
// and exposes to the model, plus the filesystem and shell tool bodies.
package tools

import (
	"context"
	"fmt"
	"sort"
)

// Category groups tools for two-stage narrowing when the pool is large.
type Category string

const (
	CategoryFileRead   Category = "file_read"
	CategoryFileWrite  Category = "file_write"
	CategoryCodeSearch Category = "code_search"
	CategoryShell      Category = "shell"
)

// Tool is one callable operation. ReadOnly tools are the only ones the
// reasoning stage may execute directly; everything else goes through the
// write stage.
type Tool struct {
	Name        string
	Description string
	Category    Category
	ReadOnly    bool
	Run         func(ctx context.Context, args map[string]string) (string, error)
}

// Registry holds the tool pool in registration order.
type Registry struct {
	tools  []Tool
	byName map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds a tool. Duplicate names are an error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.byName[t.Name] = len(r.tools)
	r.tools = append(r.tools, t)
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// All returns every tool in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// ReadOnly returns the tools the reasoning stage may call.
func (r *Registry) ReadOnly() []Tool {
	var out []Tool
	for _, t := range r.tools {
		if t.ReadOnly {
			out = append(out, t)
		}
	}
	return out
}

// InCategory returns the tools in a category, in registration order.
func (r *Registry) InCategory(c Category) []Tool {
	var out []Tool
	for _, t := range r.tools {
		if t.Category == c {
			out = append(out, t)
		}
	}
	return out
}

// Categories returns the distinct categories present, sorted.
func (r *Registry) Categories() []Category {
	seen := make(map[Category]bool)
	for _, t := range r.tools {
		seen[t.Category] = true
	}
	out := make([]Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the pool size.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Describe renders a one-line-per-tool listing for selection prompts.
func Describe(pool []Tool) string {
	var s string
	for _, t := range pool {
		s += fmt.Sprintf("- %s: %s\n", t.Name, t.Description)
	}
	return s
}
