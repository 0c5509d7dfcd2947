// Package rule loads project rule documents and selects the ones
// relevant to a subtask. Rules are short markdown files holding
// constraints the reasoning stage must respect (style, layout,
// forbidden patterns). Selection is by term overlap, not a model call,
// so it costs no context budget to decide.
package rule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Rule is one loaded rule document. Name is the file stem.
type Rule struct {
	Name        string
	Description string
	Body        string
}

// Repo holds the loaded rule set.
type Repo struct {
	rules []Rule
}

// Load reads rule files from the given directories in order; later
// directories shadow earlier ones by file stem. Missing directories
// are skipped.
func Load(dirs ...string) (*Repo, error) {
	md := goldmark.New()
	byName := make(map[string]Rule)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rule directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to read rule file %s: %w", e.Name(), err)
			}
			name := strings.TrimSuffix(e.Name(), ".md")
			byName[name] = Rule{
				Name:        name,
				Description: firstHeading(md, data),
				Body:        strings.TrimSpace(string(data)),
			}
		}
	}

	repo := &Repo{}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		repo.rules = append(repo.rules, byName[name])
	}
	return repo, nil
}

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

// Len returns the number of loaded rules.
func (r *Repo) Len() int {
	return len(r.rules)
}

// Names returns the loaded rule names in sorted order.
func (r *Repo) Names() []string {
	names := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		names = append(names, rule.Name)
	}
	return names
}

// Get returns the named rule.
func (r *Repo) Get(name string) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.Name == name {
			return rule, true
		}
	}
	return Rule{}, false
}

// Select returns up to max rules ranked by term overlap between the
// rule's name, description, and body, and the given task description.
// Rules with no overlap at all are never selected. Ties break on name
// order so selection is deterministic.
func (r *Repo) Select(description string, max int) []Rule {
	if max <= 0 || len(r.rules) == 0 {
		return nil
	}
	taskTerms := terms(description)
	if len(taskTerms) == 0 {
		return nil
	}

	type scored struct {
		rule  Rule
		score int
	}
	var candidates []scored
	for _, rule := range r.rules {
		ruleTerms := terms(rule.Name + " " + rule.Description + " " + rule.Body)
		score := 0
		for term := range taskTerms {
			if ruleTerms[term] {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{rule, score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rule.Name < candidates[j].rule.Name
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]Rule, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.rule)
	}
	return out
}

// stopwords excluded from overlap scoring; they match everything and
// carry no signal.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "is": true, "are": true, "be": true, "it": true,
	"this": true, "that": true, "all": true, "any": true, "not": true,
}

func terms(s string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(word) < 3 || stopwords[word] {
			continue
		}
		out[word] = true
	}
	return out
}
