// Package skill loads the capability documents the pipeline classifies
// subtasks against. Each skill is a markdown file: the first heading is
// the short description shown in selection prompts, the full body is the
// instruction prompt injected at the reasoning stage.
package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/marcel/stitch/internal/session"
)

// GenericTag is the fallback capability used when classification yields
// nothing usable.
const GenericTag = "general-edit"

// genericPrompt keeps the pipeline functional in a workspace with no
// skill files at all.
const genericPrompt = `# General code editing

Make the smallest change that satisfies the task. Read the relevant
files before proposing edits, and copy old strings exactly from the
current file content.`

// Skill is one capability document. Tag is the file stem and the
// identifier the model selects by.
type Skill struct {
	Tag         string
	Description string
	Prompt      string
}

// Repo holds the loaded skill set, keyed by tag.
type Repo struct {
	skills []Skill
	byTag  map[string]int
}

// Load reads skill files from the given directories in order. A file in
// a later directory shadows an earlier one with the same stem, so
// project-local skills override shared ones. Missing directories are
// skipped. A repo with no files still resolves the generic fallback.
func Load(dirs ...string) (*Repo, error) {
	md := goldmark.New()
	byTag := make(map[string]Skill)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read skill directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to read skill file %s: %w", e.Name(), err)
			}
			tag := strings.TrimSuffix(e.Name(), ".md")
			byTag[tag] = Skill{
				Tag:         tag,
				Description: firstHeading(md, data),
				Prompt:      strings.TrimSpace(string(data)),
			}
		}
	}

	repo := &Repo{byTag: make(map[string]int)}
	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		repo.byTag[tag] = len(repo.skills)
		repo.skills = append(repo.skills, byTag[tag])
	}
	return repo, nil
}

// firstHeading extracts the text of the first heading in a markdown
// document. Falls back to the first non-empty line.
func firstHeading(md goldmark.Markdown, source []byte) string {
	doc := md.Parser().Parse(text.NewReader(source))
	var heading string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			heading = string(h.Text(source))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if heading != "" {
		return heading
	}
	for _, line := range strings.Split(string(source), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Get returns the skill for a tag. The generic fallback is always
// resolvable, even in an empty repo.
func (r *Repo) Get(tag string) (Skill, bool) {
	if i, ok := r.byTag[tag]; ok {
		return r.skills[i], true
	}
	if tag == GenericTag {
		return Skill{Tag: GenericTag, Description: "General code editing", Prompt: genericPrompt}, true
	}
	return Skill{}, false
}

// Tags returns the loaded tags in sorted order.
func (r *Repo) Tags() []string {
	tags := make([]string, 0, len(r.skills))
	for _, s := range r.skills {
		tags = append(tags, s.Tag)
	}
	return tags
}

// Len returns the number of loaded skills.
func (r *Repo) Len() int {
	return len(r.skills)
}

// Catalog renders the one-line-per-skill listing used in the
// classification prompt.
func (r *Repo) Catalog() string {
	var b strings.Builder
	for _, s := range r.skills {
		fmt.Fprintf(&b, "- %s: %s\n", s.Tag, s.Description)
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "- %s: General code editing\n", GenericTag)
	}
	return b.String()
}

// ParseSelection interprets the model's classification output as a list
// of skill tags. Accepts a JSON array of strings or a comma-separated
// line; unknown tags are dropped, duplicates removed, order preserved.
// An empty result falls back to the generic tag.
func (r *Repo) ParseSelection(output string) []string {
	var raw []string
	if arr, ok := session.ExtractArray(output); ok {
		raw = splitJSONStrings(arr)
	}
	if len(raw) == 0 {
		for _, part := range strings.Split(strings.TrimSpace(output), ",") {
			raw = append(raw, strings.TrimSpace(part))
		}
	}

	seen := make(map[string]bool)
	var tags []string
	for _, tag := range raw {
		tag = strings.Trim(tag, "\"' `")
		if tag == "" || seen[tag] {
			continue
		}
		if _, ok := r.Get(tag); !ok {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return []string{GenericTag}
	}
	return tags
}

func splitJSONStrings(arr string) []string {
	arr = strings.TrimSpace(arr)
	arr = strings.TrimPrefix(arr, "[")
	arr = strings.TrimSuffix(arr, "]")
	var out []string
	for _, part := range strings.Split(arr, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}
