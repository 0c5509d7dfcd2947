package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadAndGet(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "refactor.md", "# Renaming and restructuring code\n\nPreserve behavior.\n")
	writeSkill(t, dir, "add-feature.md", "# Adding new functionality\n\nKeep additions minimal.\n")
	writeSkill(t, dir, "notes.txt", "not a skill")

	repo, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())
	assert.Equal(t, []string{"add-feature", "refactor"}, repo.Tags())

	s, ok := repo.Get("refactor")
	require.True(t, ok)
	assert.Equal(t, "Renaming and restructuring code", s.Description)
	assert.Contains(t, s.Prompt, "Preserve behavior.")

	_, ok = repo.Get("unknown")
	assert.False(t, ok)
}

func TestLoadShadowing(t *testing.T) {
	shared := t.TempDir()
	local := t.TempDir()
	writeSkill(t, shared, "refactor.md", "# Shared refactor rules\n")
	writeSkill(t, shared, "testing.md", "# Shared test rules\n")
	writeSkill(t, local, "refactor.md", "# Project refactor rules\n")

	repo, err := Load(shared, local)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())

	s, ok := repo.Get("refactor")
	require.True(t, ok)
	assert.Equal(t, "Project refactor rules", s.Description)
}

func TestLoadMissingDir(t *testing.T) {
	repo, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Equal(t, 0, repo.Len())
}

func TestGenericFallback(t *testing.T) {
	repo, err := Load()
	require.NoError(t, err)

	s, ok := repo.Get(GenericTag)
	require.True(t, ok)
	assert.Equal(t, GenericTag, s.Tag)
	assert.NotEmpty(t, s.Prompt)

	assert.Contains(t, repo.Catalog(), GenericTag)
}

func TestFirstHeadingFallback(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "plain.md", "no heading here\nmore text\n")

	repo, err := Load(dir)
	require.NoError(t, err)
	s, ok := repo.Get("plain")
	require.True(t, ok)
	assert.Equal(t, "no heading here", s.Description)
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "refactor.md", "# Restructuring\n")

	repo, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "- refactor: Restructuring\n", repo.Catalog())
}

func TestParseSelection(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "refactor.md", "# R\n")
	writeSkill(t, dir, "testing.md", "# T\n")
	repo, err := Load(dir)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"json array", `["refactor"]`, []string{"refactor"}},
		{"fenced array", "```json\n[\"refactor\", \"testing\"]\n```", []string{"refactor", "testing"}},
		{"comma list", "refactor, testing", []string{"refactor", "testing"}},
		{"bare tag", "testing", []string{"testing"}},
		{"duplicates", `["refactor", "refactor"]`, []string{"refactor"}},
		{"unknown dropped", `["refactor", "cooking"]`, []string{"refactor"}},
		{"all unknown", `["cooking"]`, []string{GenericTag}},
		{"prose", "none of these apply", []string{GenericTag}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repo.ParseSelection(tt.in))
		})
	}
}
