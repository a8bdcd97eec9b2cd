package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.soquee.net/canonical/internal/config"
	"code.soquee.net/canonical/store"
)

const fixture = `
users:
  - {id: 1, login: admin}
terms:
  - {id: 2, taxonomy: category, slug: news}
posts:
  - id: 10
    name: hello
    date: 2019-01-02T10:00:00Z
    author: 1
    terms: [2]
  - {id: 11, type: page, name: about, date: 2019-01-01T00:00:00Z}
  - {id: 14, status: draft, name: wip, date: 2019-02-01T00:00:00Z}
`

// writeSite writes a config file and a fixture to a temporary directory and
// returns their paths.
func writeSite(t *testing.T, extra string) (cfgPath, fixturePath string) {
	t.Helper()
	for _, k := range []string{
		"CANONICAL_LISTEN", "CANONICAL_DATABASE", "CANONICAL_HOST_VERSION", "CANONICAL_HOME",
		"CANONICAL_PERMALINK_STRUCTURE", "CANONICAL_UPDATE_URL", "CANONICAL_SHUTDOWN_TIMEOUT",
		"CANONICAL_UPDATE_INTERVAL", "CANONICAL_UPDATE_ENABLED", "CANONICAL_UPDATE_RETRIES",
	} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	cfg := `database: ` + filepath.Join(dir, "site.db") + `
site:
  home: http://example.com
rewrite:
  structure: /%year%/%monthnum%/%postname%/
` + extra
	if !strings.Contains(extra, "update:") {
		cfg += "update:\n  enabled: false\n"
	}
	cfgPath = filepath.Join(dir, "canonical.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	fixturePath = filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixturePath, []byte(fixture), 0o600))
	return cfgPath, fixturePath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "canonicald", cmd.Use)
	for _, name := range []string{"serve", "resolve", "seed", "manifest", "update-check", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	for _, flag := range []string{configFlag, logLevelFlag, logFormatFlag} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestInvalidLogFlags(t *testing.T) {
	_, err := run(t, "--loglevel", "loud", "version")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = run(t, "--logformat", "xml", "version")
	assert.ErrorContains(t, err, "invalid log format")
}

func TestVersionCmd(t *testing.T) {
	orig := versionInfo
	t.Cleanup(func() { versionInfo = orig })
	SetVersion("1.2.3", "abc123", "2026-01-31")

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "canonicald 1.2.3")
	assert.Contains(t, out, "Commit: abc123")
	assert.Contains(t, out, "Built:  2026-01-31")
}

func TestManifestCmd(t *testing.T) {
	out, err := run(t, "manifest")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": {"5.1": "1.0.0"}, "disable": {}}`, out)

	out, err = run(t, "manifest", "--version", "5.2=1.1.0", "--disable", "5.3")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": {"5.2": "1.1.0"}, "disable": {"wp_version": "5.3"}}`, out)
}

func TestSeedAndResolve(t *testing.T) {
	cfg, fix := writeSite(t, "")

	out, err := run(t, "--config", cfg, "seed", fix)
	require.NoError(t, err)
	assert.Equal(t, "Seeded 1 users, 1 terms and 3 posts\n", out)

	for url, want := range map[string]string{
		"http://example.com/?p=10":                 "301 http://example.com/2019/01/hello/\n",
		"http://www.example.com/2019/01/hello/":    "301 http://example.com/2019/01/hello/\n",
		"http://example.com/2019/01/hello":         "301 http://example.com/2019/01/hello/\n",
		"http://example.com/2019/01/hello/":        "no redirect (post 10)\n",
		"http://example.com/?page_id=11":           "301 http://example.com/about/\n",
		"http://example.com/category/nonexistent/": "no redirect (not found)\n",
	} {
		out, err := run(t, "--config", cfg, "resolve", url)
		require.NoError(t, err, url)
		assert.Equal(t, want, out, url)
	}

	out, err = run(t, "--config", cfg, "resolve", "-X", "POST", "http://www.example.com/2019/01/hello/")
	require.NoError(t, err)
	assert.Equal(t, "no redirect (post 10)\n", out)
}

func TestResolveErrors(t *testing.T) {
	cfg, _ := writeSite(t, "")

	_, err := run(t, "--config", cfg, "resolve", "/2019/01/hello/")
	assert.ErrorContains(t, err, "absolute")

	_, err = run(t, "--config", cfg, "resolve")
	assert.Error(t, err)

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "resolve", "http://example.com/")
	assert.Error(t, err)
}

func TestSeedInvalidFixture(t *testing.T) {
	cfg, _ := writeSite(t, "")
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pages: []\n"), 0o600))

	_, err := run(t, "--config", cfg, "seed", bad)
	assert.Error(t, err)
}

func newTestSite(t *testing.T) *site {
	t.Helper()
	cfgPath, fix := writeSite(t, "")
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	s, err := openStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f, err := os.Open(fix)
	require.NoError(t, err)
	defer f.Close()
	fx, err := store.ReadFixture(f)
	require.NoError(t, err)
	require.NoError(t, s.Seed(context.Background(), fx))
	return newSite(cfg, s)
}

func TestHandler(t *testing.T) {
	h, handler := newHandler(newTestSite(t))
	require.True(t, h.Enabled())

	for _, tc := range []struct {
		url      string
		code     int
		location string
		body     string
	}{
		{url: "http://www.example.com/2019/01/hello/", code: http.StatusMovedPermanently, location: "http://example.com/2019/01/hello/"},
		{url: "http://example.com/?p=10", code: http.StatusMovedPermanently, location: "http://example.com/2019/01/hello/"},
		{url: "http://example.com/2019/01/hello/", code: http.StatusOK, body: "post 10\n"},
		{url: "http://example.com/about/", code: http.StatusOK, body: "page 11\n"},
		{url: "http://example.com/", code: http.StatusOK, body: "home 0\n"},
		{url: "http://example.com/category/nonexistent/", code: http.StatusNotFound, body: "not found\n"},
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.url, nil))
		assert.Equal(t, tc.code, rec.Code, tc.url)
		assert.Equal(t, tc.location, rec.Header().Get("Location"), tc.url)
		if tc.body != "" {
			assert.Equal(t, tc.body, rec.Body.String(), tc.url)
		}
	}

	h.SetEnabled(false)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://www.example.com/2019/01/hello/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := withRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "abc", seen)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestUpdateCheckCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version": {"5.1": "1.1.0"}}`))
	}))
	defer srv.Close()

	orig := versionInfo
	t.Cleanup(func() { versionInfo = orig })
	SetVersion("1.0.0", "none", "unknown")

	cfg, _ := writeSite(t, "host_version: 5.1.3\nupdate:\n  enabled: true\n  url: "+srv.URL+"\n")
	out, err := run(t, "--config", cfg, "update-check")
	require.NoError(t, err)
	assert.Contains(t, out, "Branch:      5.1")
	assert.Contains(t, out, "Disabled:    false")
	assert.Contains(t, out, "New version: 1.1.0")
	assert.Contains(t, out, "Notice:      1.1.0")
}
