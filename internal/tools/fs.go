package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marcel/stitch/internal/filelock"
	"github.com/marcel/stitch/internal/workspace"
)

// maxSearchResults bounds search_in_files output so a broad pattern
// cannot flood the context.
const maxSearchResults = 50

// FSOptions configures the default tool set.
type FSOptions struct {
	Root           string
	Cache          *workspace.Cache
	CommandTimeout time.Duration
}

// DefaultRegistry builds the standard tool pool over a workspace root.
// Read results are served from the cache when present so a task sees
// edits made by earlier tasks in the same run.
func DefaultRegistry(opts FSOptions) (*Registry, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = 30 * time.Second
	}

	r := NewRegistry()
	specs := []Tool{
		{
			Name:        "read_file",
			Description: "Read the full content of a file by workspace-relative path",
			Category:    CategoryFileRead,
			ReadOnly:    true,
			Run:         readFile(opts),
		},
		{
			Name:        "list_directory",
			Description: "List the entries of a directory by workspace-relative path",
			Category:    CategoryFileRead,
			ReadOnly:    true,
			Run:         listDirectory(opts),
		},
		{
			Name:        "file_info",
			Description: "Report size and line count of a file",
			Category:    CategoryFileRead,
			ReadOnly:    true,
			Run:         fileInfo(opts),
		},
		{
			Name:        "search_in_files",
			Description: "Find lines containing a literal pattern across workspace files",
			Category:    CategoryCodeSearch,
			ReadOnly:    true,
			Run:         searchInFiles(opts),
		},
		{
			Name:        "write_file",
			Description: "Create or overwrite a file with full content",
			Category:    CategoryFileWrite,
			Run:         writeFile(opts),
		},
		{
			Name:        "delete_file",
			Description: "Delete a file by workspace-relative path",
			Category:    CategoryFileWrite,
			Run:         deleteFile(opts),
		},
		{
			Name:        "run_command",
			Description: "Run a shell command in the workspace and capture its output",
			Category:    CategoryShell,
			Run:         runCommand(opts),
		},
	}
	for _, t := range specs {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// resolve maps a workspace-relative path to an absolute one, rejecting
// escapes above the root.
func resolve(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path argument is required")
	}
	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return filepath.Join(root, cleaned), nil
}

func readFile(opts FSOptions) func(context.Context, map[string]string) (string, error) {
	return func(_ context.Context, args map[string]string) (string, error) {
		path := args["path"]
		if opts.Cache != nil {
			if content, ok := opts.Cache.Get(path); ok {
				return content, nil
			}
		}
		abs, err := resolve(opts.Root, path)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), nil
	}
}

func listDirectory(opts FSOptions) func(context.Context, map[string]string) (string, error) {
	return func(_ context.Context, args map[string]string) (string, error) {
		path := args["path"]
		if path == "" {
			path = "."
		}
		abs, err := resolve(opts.Root, path)
		if err != nil {
			return "", err
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			return "", fmt.Errorf("failed to list %s: %w", path, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return "(empty directory)", nil
		}
		return strings.Join(names, "\n"), nil
	}
}

func fileInfo(opts FSOptions) func(context.Context, map[string]string) (string, error) {
	return func(_ context.Context, args map[string]string) (string, error) {
		path := args["path"]
		var content string
		if opts.Cache != nil {
			if c, ok := opts.Cache.Get(path); ok {
				content = c
			}
		}
		if content == "" {
			abs, err := resolve(opts.Root, path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return "", fmt.Errorf("failed to stat %s: %w", path, err)
			}
			content = string(data)
		}
		lines := strings.Count(content, "\n")
		if content != "" && !strings.HasSuffix(content, "\n") {
			lines++
		}
		return fmt.Sprintf("%s: %d bytes, %d lines", path, len(content), lines), nil
	}
}

func searchInFiles(opts FSOptions) func(context.Context, map[string]string) (string, error) {
	return func(_ context.Context, args map[string]string) (string, error) {
		pattern := args["pattern"]
		if pattern == "" {
			return "", fmt.Errorf("pattern argument is required")
		}
		scan, err := workspace.Scan(opts.Root, workspace.ScanOptions{})
		if err != nil {
			return "", err
		}

		var matches []string
		for _, rel := range scan.Files {
			content, cached := "", false
			if opts.Cache != nil {
				content, cached = opts.Cache.Get(rel)
			}
			if !cached {
				data, err := os.ReadFile(filepath.Join(opts.Root, rel))
				if err != nil {
					continue
				}
				content = string(data)
			}
			for i, line := range strings.Split(content, "\n") {
				if strings.Contains(line, pattern) {
					matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
					if len(matches) >= maxSearchResults {
						return strings.Join(matches, "\n") + "\n... (more matches)", nil
					}
				}
			}
		}
		if len(matches) == 0 {
			return fmt.Sprintf("no matches for %q", pattern), nil
		}
		return strings.Join(matches, "\n"), nil
	}
}

func writeFile(opts FSOptions) func(context.Context, map[string]string) (string, error) {
	return func(_ context.Context, args map[string]string) (string, error) {
		path := args["path"]
		content := args["content"]
		abs, err := resolve(opts.Root, path)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return "", fmt.Errorf("failed to create parent directory for %s: %w", path, err)
		}
		if err := filelock.AtomicWrite(abs, []byte(content)); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		if opts.Cache != nil {
			opts.Cache.Put(path, content)
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
	}
}

func deleteFile(opts FSOptions) func(context.Context, map[string]string) (string, error) {
	return func(_ context.Context, args map[string]string) (string, error) {
		path := args["path"]
		abs, err := resolve(opts.Root, path)
		if err != nil {
			return "", err
		}
		if err := os.Remove(abs); err != nil {
			return "", fmt.Errorf("failed to delete %s: %w", path, err)
		}
		if opts.Cache != nil {
			opts.Cache.Delete(path)
		}
		return fmt.Sprintf("deleted %s", path), nil
	}
}

func runCommand(opts FSOptions) func(context.Context, map[string]string) (string, error) {
	return func(ctx context.Context, args map[string]string) (string, error) {
		command := args["command"]
		if command == "" {
			return "", fmt.Errorf("command argument is required")
		}
		ctx, cancel := context.WithTimeout(ctx, opts.CommandTimeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = opts.Root
		out, err := cmd.CombinedOutput()
		if ctx.Err() == context.DeadlineExceeded {
			return string(out), fmt.Errorf("command timed out after %s", opts.CommandTimeout)
		}
		if err != nil {
			return string(out), fmt.Errorf("command failed: %w", err)
		}
		return string(out), nil
	}
}
