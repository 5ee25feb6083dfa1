package commands

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("BETTERQUERY_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "betterquery version: dev")
	assert.Contains(t, out, "Go version: go")
}

func TestRoutes(t *testing.T) {
	inTempDir(t)
	out, _, err := run(t, "routes")
	require.NoError(t, err)
	assert.Contains(t, out, "/api/product/{id}")
	assert.Contains(t, out, "/api/categorys")
	assert.Contains(t, out, "product.stats")
	assert.NotContains(t, out, "tag.delete")
}

func TestMigrate_SQLite(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv("BETTERQUERY_DATABASE_URL", filepath.Join(dir, "app.db"))

	out, stderr, err := run(t, "migrate")
	require.NoError(t, err, stderr)
	for _, model := range []string{"category", "product", "tag", "product_tags", "audit_logs"} {
		assert.Contains(t, out, "✓ "+model+"\n")
	}

	out, _, err = run(t, "migrate")
	require.NoError(t, err)
	assert.NotContains(t, out, "SCHEMA DRIFT")
}

func TestMigrate_NoDatabase(t *testing.T) {
	inTempDir(t)
	out, _, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to migrate")
}

func TestConfigError(t *testing.T) {
	inTempDir(t)
	t.Setenv("BETTERQUERY_DATABASE_DRIVER", "mysql")
	_, stderr, err := run(t, "routes")
	assert.Error(t, err)
	assert.Contains(t, stderr, "CONFIGURATION")
}

func TestRootHandler_Health(t *testing.T) {
	inTempDir(t)
	cmd := NewRootCommand()
	opts := &rootOptions{}
	cfg, logger, err := opts.load(cmd)
	require.NoError(t, err)
	a, err := buildApp(commandContext(cmd), cfg, logger, nil)
	require.NoError(t, err)
	defer a.Close()

	h := rootHandler(a)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/categorys", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
