package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	out, err := Render("spec", "name: {{ .name }}\nreplicas: {{ .replicas }}\n", map[string]any{
		"name":     "web",
		"replicas": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "name: web\nreplicas: 3\n", out)
}

func TestRender_MissingParamFails(t *testing.T) {
	_, err := Render("spec", "name: {{ .name }}\n", map[string]any{})
	require.Error(t, err)
	var invalid *InvalidTemplateError
	assert.True(t, errors.As(err, &invalid))
}

func TestRender_BadSyntaxFails(t *testing.T) {
	_, err := Render("spec", "name: {{ .name \n", nil)
	require.Error(t, err)
	var invalid *InvalidTemplateError
	assert.True(t, errors.As(err, &invalid))
}

func TestRender_InvalidYAMLOutputFails(t *testing.T) {
	_, err := Render("spec", "{{ .v }}", map[string]any{"v": ":\n  - ]["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid YAML")
}

func TestRenderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("app: {{ .app }}\n"), 0o644))

	out, err := RenderFile(path, map[string]any{"app": "demo"})
	require.NoError(t, err)
	assert.Equal(t, "app: demo\n", out)

	_, err = RenderFile(filepath.Join(t.TempDir(), "missing.tmpl"), nil)
	assert.Error(t, err)
}

func TestRenderToMap(t *testing.T) {
	doc, err := RenderToMap("spec", "name: {{ .name }}\nenv:\n  stage: beta\n", map[string]any{"name": "web"})
	require.NoError(t, err)
	assert.Equal(t, "web", doc["name"])
	env, ok := doc["env"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "beta", env["stage"])
}
