package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache()

	_, ok := c.Get("main.go")
	assert.False(t, ok, "missing path should not be found")

	c.Put("main.go", "package main\n")
	content, ok := c.Get("main.go")
	require.True(t, ok)
	assert.Equal(t, "package main\n", content)

	// Every write replaces the whole entry.
	c.Put("main.go", "package main\n\nfunc main() {}\n")
	content, _ = c.Get("main.go")
	assert.Equal(t, "package main\n\nfunc main() {}\n", content)
}

func TestCachePathsSorted(t *testing.T) {
	c := NewCache()
	c.Put("b.go", "b")
	c.Put("a.go", "a")
	c.Put("c/d.go", "d")

	assert.Equal(t, []string{"a.go", "b.go", "c/d.go"}, c.Paths())
	assert.Equal(t, 3, c.Len())

	c.Delete("b.go")
	assert.Equal(t, []string{"a.go", "c/d.go"}, c.Paths())
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "util.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("x"), 0o644))

	res, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "main.go", "pkg/util.go"}, res.Files)
	assert.False(t, res.Truncated)
}

func TestScanExtensionsAndCap(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.md"), []byte("x"), 0o644))

	res, err := Scan(root, ScanOptions{Extensions: []string{"go"}, MaxFiles: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, res.Files)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Listing(), "... (more files)")
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "absent"), ScanOptions{})
	assert.Error(t, err)
}

func TestListingEmpty(t *testing.T) {
	res := &ScanResult{}
	assert.Equal(t, "(empty workspace)", res.Listing())
}
