package ignorefile

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func includedFiles(t *testing.T, root string, ignoreFiles []string) []string {
	t.Helper()
	m, err := Load(root, ignoreFiles)
	require.NoError(t, err)
	files, err := Files(root, m)
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func TestLoad_NoIgnoreFileIncludesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main")
	writeFile(t, filepath.Join(root, "sub", "util.go"), "package sub")

	files := includedFiles(t, root, nil)
	assert.Equal(t, []string{"main.go", "sub/util.go"}, files)
}

func TestLoad_DefaultDockerignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".dockerignore"), "*.log\n")
	writeFile(t, filepath.Join(root, "app.py"), "print()")
	writeFile(t, filepath.Join(root, "debug.log"), "noise")

	files := includedFiles(t, root, nil)
	assert.Contains(t, files, "app.py")
	assert.Contains(t, files, ".dockerignore")
	assert.NotContains(t, files, "debug.log")
}

func TestLoad_CommentsBlanksAndNegation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".ignore"), "# build output\n\n*.log\n!keep.log\n")
	writeFile(t, filepath.Join(root, "debug.log"), "x")
	writeFile(t, filepath.Join(root, "keep.log"), "x")
	writeFile(t, filepath.Join(root, "main.go"), "x")

	files := includedFiles(t, root, []string{filepath.Join(root, ".ignore")})
	assert.Equal(t, []string{".ignore", "keep.log", "main.go"}, files)
}

func TestLoad_LaterPatternsOverrideEarlier(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".ignore"), "!debug.log\n*.log\n")
	writeFile(t, filepath.Join(root, "debug.log"), "x")

	files := includedFiles(t, root, []string{filepath.Join(root, ".ignore")})
	assert.NotContains(t, files, "debug.log", "a later exclude overrides an earlier include")
}

func TestLoad_DirectoryPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".ignore"), "vendor/\n**/generated.go\n")
	writeFile(t, filepath.Join(root, "vendor", "lib.go"), "x")
	writeFile(t, filepath.Join(root, "pkg", "generated.go"), "x")
	writeFile(t, filepath.Join(root, "pkg", "real.go"), "x")

	files := includedFiles(t, root, []string{filepath.Join(root, ".ignore")})
	assert.Equal(t, []string{".ignore", "pkg/real.go"}, files)
}

func TestLoad_IgnoreFileOutsideRootFails(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	writeFile(t, filepath.Join(other, ".ignore"), "*.log\n")

	_, err := Load(root, []string{filepath.Join(other, ".ignore")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direct child")
}

func TestLoad_NestedIgnoreFileFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", ".ignore"), "*.log\n")

	_, err := Load(root, []string{filepath.Join(root, "sub", ".ignore")})
	require.Error(t, err)
}

func TestFiles_FollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "linked.txt"), "data")
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link")))

	files := includedFiles(t, root, nil)
	assert.Equal(t, []string{"link/linked.txt"}, files)
}

func TestFiles_SymlinkCycleTerminates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "x")
	require.NoError(t, os.Symlink(root, filepath.Join(root, "self")))

	files := includedFiles(t, root, nil)
	assert.Contains(t, files, "a.txt")
}

func TestTree_DeterministicRendering(t *testing.T) {
	out := Tree("/tmp/app", []string{"sub/b.txt", "a.txt", "sub/a.txt"})
	assert.Equal(t, "app/\n  a.txt\n  sub/\n    a.txt\n    b.txt\n", out)
}
