package mcpserver

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsmcp/internal/embeddings"
	"docsmcp/internal/metadatastore"
	"docsmcp/internal/vectorstore"
)

func setup(t *testing.T) (*Server, *metadatastore.Store, *vectorstore.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := metadatastore.Open(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	vectors, err := vectorstore.Open(filepath.Join(dir, "vectors"))
	require.NoError(t, err)

	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[1,0,0]}`))
	}))
	t.Cleanup(embedSrv.Close)
	embedder := embeddings.New(embeddings.Config{BaseURL: embedSrv.URL, Model: "m"}, nil)

	srv := New(store, vectors, embedder, "test", nil)
	return srv, store, vectors
}

func TestListSitesReturnsOnlyCompleted(t *testing.T) {
	srv, store, _ := setup(t)

	_, err := store.CreateSite(t.Context(), "https://pending.test/", "Pending", "1.0")
	require.NoError(t, err)

	doneID, err := store.CreateSite(t.Context(), "https://done.test/", "Done", "2.0")
	require.NoError(t, err)
	require.NoError(t, store.MarkSiteIndexed(t.Context(), doneID))

	_, out, err := srv.handleListSites(t.Context(), nil, ListSitesInput{})
	require.NoError(t, err)
	require.Len(t, out.Sites, 1)
	assert.Equal(t, "Done", out.Sites[0].Name)
}

func TestSearchDocsReturnsRankedResults(t *testing.T) {
	srv, store, vectors := setup(t)

	siteID, err := store.CreateSite(t.Context(), "https://done.test/", "Done", "1.0")
	require.NoError(t, err)
	require.NoError(t, vectors.Upsert([]vectorstore.Record{
		{VectorID: "v1", Vector: []float32{1, 0, 0}, SiteID: siteID, Content: "widgets are great", PageURL: "https://done.test/a", HeadingPath: "Intro"},
	}))

	_, out, err := srv.handleSearchDocs(t.Context(), nil, SearchDocsInput{Query: "widgets", Limit: 5})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "widgets are great", out.Results[0].Content)
	assert.Equal(t, "Done", out.Results[0].SiteName)
}

func TestSearchDocsFiltersBySitesFilter(t *testing.T) {
	srv, store, vectors := setup(t)

	siteA, err := store.CreateSite(t.Context(), "https://a.test/", "A", "1.0")
	require.NoError(t, err)
	siteB, err := store.CreateSite(t.Context(), "https://b.test/", "B", "1.0")
	require.NoError(t, err)
	require.NoError(t, vectors.Upsert([]vectorstore.Record{
		{VectorID: "v-a", Vector: []float32{1, 0, 0}, SiteID: siteA, Content: "from a"},
		{VectorID: "v-b", Vector: []float32{1, 0, 0}, SiteID: siteB, Content: "from b"},
	}))

	_, out, err := srv.handleSearchDocs(t.Context(), nil, SearchDocsInput{Query: "x", SitesFilter: []int64{siteB}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "from b", out.Results[0].Content)
}
