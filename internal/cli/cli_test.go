package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsmcp/internal/metadatastore"
)

// testServers spins up a fake embedding service and a one-page documentation
// site, and returns the config.toml content wiring the former.
func testServers(t *testing.T) (embedSrv, pageSrv *httptest.Server, configTOML string) {
	t.Helper()

	embedSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[{"name":"nomic-embed-text"}]}`))
			return
		}
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3,0.4]}`))
	}))
	t.Cleanup(embedSrv.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(404) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><main><h1>Widgets</h1><p>This page explains widgets and how gadgets relate to them.</p></main></body></html>`))
	})
	pageSrv = httptest.NewServer(mux)
	t.Cleanup(pageSrv.Close)

	embedURL, err := url.Parse(embedSrv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(embedURL.Port())
	require.NoError(t, err)

	configTOML = fmt.Sprintf(`
[ollama]
protocol = "http"
host = %q
port = %d
model = "nomic-embed-text"
batch_size = 4
embedding_dimension = 64

[chunking]
target_chunk_size = 100
max_chunk_size = 300
min_chunk_size = 50
overlap_size = 10
`, embedURL.Hostname(), port)
	return embedSrv, pageSrv, configTOML
}

func runCLI(t *testing.T, dir string, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append(args, "--data-dir", dir))
	return rootCmd.Execute()
}

func TestAddCrawlsAndIndexesSite(t *testing.T) {
	dir := t.TempDir()
	_, pageSrv, cfg := testServers(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644))

	require.NoError(t, runCLI(t, dir, "add", pageSrv.URL+"/"))

	store, err := metadatastore.Open(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	defer store.Close()

	sites, err := store.ListSites(t.Context())
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, metadatastore.SiteStatusCompleted, sites[0].Status)

	chunks, err := store.ListIndexedChunksBySite(t.Context(), sites[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestAddRejectsInvalidURL(t *testing.T) {
	dir := t.TempDir()
	_, _, cfg := testServers(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644))

	err := runCLI(t, dir, "add", "not-a-url")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestAddRejectsDuplicateSite(t *testing.T) {
	dir := t.TempDir()
	_, pageSrv, cfg := testServers(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644))

	require.NoError(t, runCLI(t, dir, "add", pageSrv.URL+"/"))
	err := runCLI(t, dir, "add", pageSrv.URL+"/")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestListSucceedsOnEmptyDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runCLI(t, dir, "list"))
}

func TestSearchFindsIndexedContent(t *testing.T) {
	dir := t.TempDir()
	_, pageSrv, cfg := testServers(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644))

	require.NoError(t, runCLI(t, dir, "add", pageSrv.URL+"/"))
	require.NoError(t, runCLI(t, dir, "search", "widgets"))
}

func TestStatusNeverReturnsErrorEvenWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runCLI(t, dir, "status"))
}

func TestValidateReportsConsistentAfterAdd(t *testing.T) {
	dir := t.TempDir()
	_, pageSrv, cfg := testServers(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644))

	require.NoError(t, runCLI(t, dir, "add", pageSrv.URL+"/"))
	require.NoError(t, runCLI(t, dir, "validate"))
}
