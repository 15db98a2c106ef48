package crawler_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsmcp/internal/crawler"
	"docsmcp/internal/httpfetch"
	"docsmcp/internal/metadatastore"
	"docsmcp/internal/robots"
)

func newDriver(t *testing.T, srv *httptest.Server) (*crawler.Driver, *metadatastore.Store) {
	t.Helper()
	fetcher := httpfetch.New(httpfetch.Config{MaxRetries: 1}, nil)
	robotsCache, err := robots.NewCache(fetcher, 16)
	require.NoError(t, err)
	store, err := metadatastore.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	d := crawler.New(fetcher, robotsCache, store, crawler.Config{MaxRetries: 2}, nil)
	return d, store
}

func TestCrawlSiteFollowsLinksAndCompletes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(404) })
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/docs/page2">next</a></body></html>`))
	})
	mux.HandleFunc("/docs/page2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>leaf page</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d, store := newDriver(t, srv)
	siteID, err := store.CreateSite(t.Context(), srv.URL+"/docs/", "Test", "1.0")
	require.NoError(t, err)

	stats, err := d.CrawlSite(t.Context(), siteID, srv.URL+"/docs/")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SuccessfulCrawls)
	assert.Equal(t, 0, stats.FailedCrawls)
	assert.Equal(t, 2, stats.TotalURLs)
}

func TestCrawlSiteRespectsRobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	})
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>should not be fetched</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d, store := newDriver(t, srv)
	siteID, err := store.CreateSite(t.Context(), srv.URL+"/docs/", "Test", "1.0")
	require.NoError(t, err)

	stats, err := d.CrawlSite(t.Context(), siteID, srv.URL+"/docs/")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RobotsBlocked)
	assert.Equal(t, 0, stats.SuccessfulCrawls)
}

func TestCrawlSiteRejectsInvalidBaseURL(t *testing.T) {
	d, store := newDriver(t, nil)
	siteID, err := store.CreateSite(t.Context(), "not-a-url", "Test", "1.0")
	require.NoError(t, err)

	_, err = d.CrawlSite(t.Context(), siteID, "not-a-url")
	require.Error(t, err)
}
