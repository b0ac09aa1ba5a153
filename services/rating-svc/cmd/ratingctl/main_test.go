package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"busbar/pkg/auth"
	"busbar/pkg/config"
)

func writeConfig(t *testing.T, engineURL string) string {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`database:
  driver: memory
auth:
  jwt_secret: ctl-secret
engine:
  url: %q
`, engineURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestToken_IssuesValidToken(t *testing.T) {
	path := writeConfig(t, "http://engine.invalid")

	out, err := execute(t, "--config", path, "token", "--user", "u42", "--role", "admin")
	require.NoError(t, err)

	tokens, err := auth.NewManager(&config.AuthConfig{JWTSecret: "ctl-secret"})
	require.NoError(t, err)

	claims, err := tokens.Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u42", claims.UserID())
	assert.Equal(t, "admin", claims.Role)
}

func TestToken_RequiresUser(t *testing.T) {
	path := writeConfig(t, "http://engine.invalid")

	_, err := execute(t, "--config", path, "token")
	assert.Error(t, err)
}

func TestResolve_CallsEngine(t *testing.T) {
	var calls atomic.Int32
	eng := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "8000", r.URL.Query().Get("Force"))
		_, _ = w.Write([]byte("42"))
	}))
	defer eng.Close()

	path := writeConfig(t, eng.URL)

	out, err := execute(t, "--config", path, "resolve",
		"--w", "40", "--t", "10", "--b", "3", "--angle", "90",
		"--a", "60", "--icc", "50", "--force", "8000", "--poles", "3")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "42", got["L"])
}

func TestResolve_NoRating(t *testing.T) {
	eng := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer eng.Close()

	path := writeConfig(t, eng.URL)

	_, err := execute(t, "--config", path, "resolve",
		"--w", "40", "--t", "10", "--b", "3", "--force", "8000", "--poles", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rating")
}

func TestResolve_RejectsInvalidConfiguration(t *testing.T) {
	path := writeConfig(t, "http://engine.invalid")

	_, err := execute(t, "--config", path, "resolve",
		"--w", "0", "--t", "10", "--b", "3", "--force", "8000", "--poles", "3")
	assert.Error(t, err)
}

func TestCatalogExport_WritesWorkbook(t *testing.T) {
	path := writeConfig(t, "http://engine.invalid")
	output := filepath.Join(t.TempDir(), "catalog.xlsx")

	out, err := execute(t, "--config", path, "catalog", "export", "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, output)

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Components", "Configurations"}, f.GetSheetList())
}
