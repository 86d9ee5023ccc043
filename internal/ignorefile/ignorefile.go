// Package ignorefile decides which files under a directory belong in an
// artifact bundle.
//
// Exclusion rules use the conventional ignore-file format: one wildcard
// pattern per line, #-prefixed comments and blank lines skipped, a leading
// ! re-including a previously excluded path, later patterns overriding
// earlier ones. When no ignore file is named, a .dockerignore directly
// under the root is used if present; otherwise everything is included.
package ignorefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultName is the conventional container-build ignore file consulted
// when the caller names none.
const DefaultName = ".dockerignore"

// Matcher reports whether a path relative to the packaged root is part of
// the include set.
type Matcher struct {
	rules *ignore.GitIgnore
}

// Load builds a Matcher for root from the given ignore files. Every ignore
// file must be a direct child of root; anything else is a configuration
// error. With no files given, a .dockerignore at the root is used when
// present.
func Load(root string, ignoreFiles []string) (*Matcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if len(ignoreFiles) == 0 {
		fallback := filepath.Join(absRoot, DefaultName)
		if _, err := os.Stat(fallback); err == nil {
			ignoreFiles = []string{fallback}
		}
	}

	var lines []string
	for _, file := range ignoreFiles {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, err
		}
		if filepath.Dir(abs) != absRoot {
			return nil, fmt.Errorf("ignore file %s must be a direct child of %s", file, root)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read ignore file: %w", err)
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}

	return &Matcher{rules: ignore.CompileIgnoreLines(lines...)}, nil
}

// Match reports whether the slash-separated relative path is included.
func (m *Matcher) Match(rel string) bool {
	if m.rules == nil {
		return true
	}
	return !m.rules.MatchesPath(rel)
}

// Files walks root and returns the slash-separated relative paths of every
// included file. Symbolic links are followed. Traversal order is not
// guaranteed beyond being stable for a given tree.
func Files(root string, m *Matcher) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Resolved directory paths already visited, so symlink cycles
	// terminate.
	visited := make(map[string]bool)

	var files []string
	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return err
		}
		if visited[resolved] {
			return nil
		}
		visited[resolved] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			name := entry.Name()
			childRel := name
			if rel != "" {
				childRel = rel + "/" + name
			}
			child := filepath.Join(dir, name)

			// Stat follows symlinks, so a linked directory is
			// traversed and a linked file is treated as a file.
			info, err := os.Stat(child)
			if err != nil {
				// Dangling symlink; nothing to package.
				continue
			}
			if info.IsDir() {
				if err := walk(child, childRel); err != nil {
					return err
				}
				continue
			}
			if m.Match(childRel) {
				files = append(files, childRel)
			}
		}
		return nil
	}

	if err := walk(absRoot, ""); err != nil {
		return nil, err
	}
	return files, nil
}

// Tree renders the include set as an indented tree rooted at root. Unlike
// traversal, the rendering order is deterministic: entries are sorted.
func Tree(root string, files []string) string {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(filepath.Base(root) + "/\n")
	printed := make(map[string]bool)
	for _, f := range sorted {
		parts := strings.Split(f, "/")
		for i := 0; i < len(parts)-1; i++ {
			dir := strings.Join(parts[:i+1], "/")
			if printed[dir] {
				continue
			}
			printed[dir] = true
			fmt.Fprintf(&b, "%s%s/\n", strings.Repeat("  ", i+1), parts[i])
		}
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", len(parts)), parts[len(parts)-1])
	}
	return b.String()
}
