package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakplatform/peak-go/internal/config"
	"github.com/peakplatform/peak-go/internal/debug"
	"github.com/peakplatform/peak-go/internal/session"
	"github.com/peakplatform/peak-go/internal/telemetry"
)

// newTestServer returns a server that answers telemetry posts with 200 and
// everything else via handler.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/"+telemetry.Endpoint) {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

// stubSession points newSession at a session bound to the test server.
func stubSession(t *testing.T, baseURL string) {
	t.Helper()
	original := newSession
	newSession = func() (*session.Session, error) {
		return session.New(
			session.WithAuthToken("test-key"),
			session.WithBaseURL(baseURL),
		)
	}
	t.Cleanup(func() { newSession = original })
}

func runCommand(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	flags = rootFlags{}
	root := newAPICmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	root.SetContext(ctx)
	err := root.Execute()
	return buf.String(), err
}

func TestAPICmd_Get(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)
		_, _ = w.Write([]byte(`{"workflows":[{"name":"sync"}]}`))
	})
	stubSession(t, server.URL)

	out, err := runCommand(t, context.Background(), "/api/v1/workflows")
	require.NoError(t, err)
	assert.Contains(t, out, `"sync"`)
}

func TestAPICmd_PostFields(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sync", body["name"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	})
	stubSession(t, server.URL)

	out, err := runCommand(t, context.Background(), "/api/v1/workflows", "-X", "POST", "-f", "name=sync")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": 7`)
}

func TestAPICmd_InvalidMethod(t *testing.T) {
	_, err := runCommand(t, context.Background(), "/x", "-X", "BREW")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP method")
}

func TestAPICmd_BodyAndFieldConflict(t *testing.T) {
	_, err := runCommand(t, context.Background(), "/x", "-d", "{}", "-f", "a=b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot use both")
}

func TestAPICmd_DryRunMakesNoCalls(t *testing.T) {
	var calls atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	stubSession(t, server.URL)

	ctx := debug.WithDryRun(context.Background(), true)
	out, err := runCommand(t, ctx, "/api/v1/workflows", "-X", "DELETE")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int32(0), calls.Load())
}

func TestAPICmd_Paged(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pageNumber") {
		case "1":
			_, _ = w.Write([]byte(`{"items":[{"n":1}],"pageCount":2}`))
		case "2":
			_, _ = w.Write([]byte(`{"items":[{"n":2}],"pageCount":2}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("pageNumber"))
		}
	})
	stubSession(t, server.URL)

	out, err := runCommand(t, context.Background(), "/api/v1/things", "--paged")
	require.NoError(t, err)

	var items []map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 2)
	assert.Equal(t, float64(1), items[0]["n"])
	assert.Equal(t, float64(2), items[1]["n"])
}

func TestAPICmd_Download(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file-contents"))
	})
	stubSession(t, server.URL)

	dest := filepath.Join(t.TempDir(), "out.bin")
	out, err := runCommand(t, context.Background(), "/api/v1/files/1", "--download", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "saved to")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "file-contents", string(data))
}

func TestAPICmd_TemplateBody(t *testing.T) {
	tmpl := filepath.Join(t.TempDir(), "workflow.yaml.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte("name: {{ .name }}\nreplicas: 2\n"), 0o644))

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sync", body["name"])
		assert.Equal(t, float64(2), body["replicas"])
		_, _ = w.Write([]byte(`{"id":3}`))
	})
	stubSession(t, server.URL)

	out, err := runCommand(t, context.Background(), "/api/v1/workflows", "-X", "POST",
		"--template", tmpl, "--template-param", "name=sync")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": 3`)
}

func TestAPICmd_TemplateMissingParamFails(t *testing.T) {
	tmpl := filepath.Join(t.TempDir(), "workflow.yaml.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte("name: {{ .name }}\n"), 0o644))

	_, err := runCommand(t, context.Background(), "/x", "-X", "POST", "--template", tmpl)
	require.Error(t, err)
}

func TestAPICmd_TemplateConflictsWithBody(t *testing.T) {
	_, err := runCommand(t, context.Background(), "/x", "--template", "t.tmpl", "-d", "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot use --template")
}

func TestAPICmd_DryRunArtifactPrintsTree(t *testing.T) {
	var calls atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	stubSession(t, server.URL)

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "app.py"), []byte("pass\n"), 0o644))

	ctx := debug.WithDryRun(context.Background(), true)
	out, err := runCommand(t, ctx, "/api/v1/images", "-X", "POST", "--artifact", root)
	require.NoError(t, err)
	assert.Contains(t, out, "app.py")
	assert.Equal(t, int32(0), calls.Load())
}

func TestParseFields(t *testing.T) {
	body, err := parseFields([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y"}, body)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)

	body, err = parseFields(nil)
	require.NoError(t, err)
	assert.Nil(t, body)
}

func withArrayKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	restore := config.SetOpenKeyring(func(keyring.Config) (keyring.Keyring, error) {
		return ring, nil
	})
	t.Cleanup(restore)
}

func runAuth(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flags = rootFlags{}
	cmd := newAuthCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestAuth_LoginStatusLogout(t *testing.T) {
	withArrayKeyring(t)
	t.Setenv(config.EnvAPIKey, "")

	out, err := runAuth(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")

	out, err = runAuth(t, "login", "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Credential saved")

	out, err = runAuth(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in")

	out, err = runAuth(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Credential removed")
}

func TestAuth_LoginWithoutTokenFails(t *testing.T) {
	withArrayKeyring(t)
	t.Setenv(config.EnvAPIKey, "")

	_, err := runAuth(t, "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")
}

func TestExecute_UnknownCommand(t *testing.T) {
	err := Execute(context.Background(), []string{"frobnicate"})
	assert.Error(t, err)
}
