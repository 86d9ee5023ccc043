package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakplatform/peak-go/internal/debug"
)

func runArtifact(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	flags = rootFlags{}
	cmd := newArtifactCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	cmd.SetContext(ctx)
	err := cmd.Execute()
	return buf.String(), err
}

func TestArtifactPackage(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("print('hi')\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "junk.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".dockerignore"), []byte("*.log\n"), 0o644))

	dest := filepath.Join(t.TempDir(), "bundle.zip")
	out, err := runArtifact(t, context.Background(), "package", root, "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	reader, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "main.py")
	assert.NotContains(t, names, "junk.log")
}

func TestArtifactPackage_DryRunPrintsTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "app.py"), []byte("pass\n"), 0o644))

	dest := filepath.Join(t.TempDir(), "bundle.zip")
	ctx := debug.WithDryRun(context.Background(), true)
	out, err := runArtifact(t, ctx, "package", root, "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "app.py")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestArtifactPackage_MissingDir(t *testing.T) {
	_, err := runArtifact(t, context.Background(), "package", filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
