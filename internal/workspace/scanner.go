package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanOptions configures workspace scanning.
type ScanOptions struct {
	// Extensions limits results to these file extensions (e.g. ".go").
	// Empty means all files.
	Extensions []string
	// ExcludeDirs lists directory names to skip in addition to dot-dirs.
	ExcludeDirs []string
	// MaxFiles caps the number of returned paths (0 = unlimited).
	MaxFiles int
}

// Scan walks the workspace root and returns workspace-relative file paths
// in sorted order. Dot-directories and excluded directories are skipped.
// When MaxFiles is set and reached, Truncated is true in the result.
type ScanResult struct {
	Files     []string
	Truncated bool
}

// Scan lists files under root per the options.
func Scan(root string, opts ScanOptions) (*ScanResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to access workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace path is not a directory: %s", root)
	}

	extMap := make(map[string]bool)
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[strings.ToLower(ext)] = true
	}
	excludeMap := make(map[string]bool)
	for _, d := range opts.ExcludeDirs {
		excludeMap[d] = true
	}

	result := &ScanResult{}
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, keep walking
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			if excludeMap[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if len(extMap) > 0 && !extMap[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		result.Files = append(result.Files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace: %w", err)
	}

	sort.Strings(result.Files)
	if opts.MaxFiles > 0 && len(result.Files) > opts.MaxFiles {
		result.Files = result.Files[:opts.MaxFiles]
		result.Truncated = true
	}
	return result, nil
}

// Listing renders a scan result as the compact file list shown to the
// planner. An empty workspace renders a placeholder rather than nothing.
func (r *ScanResult) Listing() string {
	if len(r.Files) == 0 {
		return "(empty workspace)"
	}
	lines := append([]string(nil), r.Files...)
	if r.Truncated {
		lines = append(lines, "... (more files)")
	}
	return strings.Join(lines, "\n")
}
