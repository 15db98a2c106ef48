package metadatastore_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsmcp/internal/metadatastore"
)

func openTestStore(t *testing.T) *metadatastore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	s, err := metadatastore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSite(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateSite(t.Context(), "https://ex.test/docs/", "Example", "1.0")
	require.NoError(t, err)

	site, err := s.GetSiteByID(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://ex.test/docs/", site.BaseURL)
	assert.Equal(t, metadatastore.SiteStatusPending, site.Status)

	byURL, err := s.GetSiteByBaseURL(t.Context(), "https://ex.test/docs/")
	require.NoError(t, err)
	assert.Equal(t, id, byURL.ID)
}

func TestDeleteSiteCascades(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateSite(t.Context(), "https://ex.test/", "Example", "1.0")
	require.NoError(t, err)

	require.NoError(t, s.AppendQueueItem(t.Context(), id, "https://ex.test/a"))
	_, err = s.CreateIndexedChunk(t.Context(), metadatastore.IndexedChunk{SiteID: id, URL: "https://ex.test/a", ChunkContent: "hi", VectorID: "v1"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSite(t.Context(), id))

	stats, err := s.SiteStatistics(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunkCount)
	assert.Equal(t, 0, stats.PendingCount)
}

func TestQueueAppendBatchIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateSite(t.Context(), "https://ex.test/", "Example", "1.0")
	require.NoError(t, err)

	n, err := s.AppendQueueBatch(t.Context(), id, []string{"https://ex.test/a", "https://ex.test/b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.AppendQueueBatch(t.Context(), id, []string{"https://ex.test/a", "https://ex.test/c"})
	require.NoError(t, err)
	assert.Equal(t, 1, n) // "a" already present, only "c" is new
}

func TestNextQueueItemRespectsRetryLimit(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateSite(t.Context(), "https://ex.test/", "Example", "1.0")
	require.NoError(t, err)
	require.NoError(t, s.AppendQueueItem(t.Context(), id, "https://ex.test/a"))

	item, err := s.NextQueueItem(t.Context(), id, 3)
	require.NoError(t, err)
	require.NotNil(t, item)

	require.NoError(t, s.IncrementRetry(t.Context(), item.ID, 3, "timeout"))
	require.NoError(t, s.IncrementRetry(t.Context(), item.ID, 3, "timeout"))
	require.NoError(t, s.IncrementRetry(t.Context(), item.ID, 3, "timeout"))

	next, err := s.NextQueueItem(t.Context(), id, 3)
	require.NoError(t, err)
	assert.Nil(t, next, "item should have exhausted its retries and dropped out of eligibility")
}

func TestResetStuckProcessing(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateSite(t.Context(), "https://ex.test/", "Example", "1.0")
	require.NoError(t, err)
	require.NoError(t, s.AppendQueueItem(t.Context(), id, "https://ex.test/a"))

	item, err := s.NextQueueItem(t.Context(), id, 3)
	require.NoError(t, err)
	require.NoError(t, s.MarkQueueItemProcessing(t.Context(), item.ID))

	n, err := s.ResetStuckProcessing(t.Context(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stats, err := s.QueueStats(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[metadatastore.QueueStatusPending])
}

func TestIndexedChunkBatchAndVectorIDLookup(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateSite(t.Context(), "https://ex.test/", "Example", "1.0")
	require.NoError(t, err)

	inserted, err := s.CreateIndexedChunkBatch(t.Context(), []metadatastore.IndexedChunk{
		{SiteID: id, URL: "https://ex.test/a", ChunkContent: "one", ChunkIndex: 0, VectorID: "v1"},
		{SiteID: id, URL: "https://ex.test/a", ChunkContent: "two", ChunkIndex: 1, VectorID: "v2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	chunk, err := s.GetIndexedChunkByVectorID(t.Context(), "v2")
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "two", chunk.ChunkContent)

	ids, err := s.AllVectorIDs(t.Context())
	require.NoError(t, err)
	assert.True(t, ids["v1"] && ids["v2"])
}

func TestHeartbeatRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ts, err := s.ReadHeartbeat(t.Context())
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	require.NoError(t, s.UpsertHeartbeat(t.Context()))
	ts, err = s.ReadHeartbeat(t.Context())
	require.NoError(t, err)
	assert.False(t, ts.IsZero())

	require.NoError(t, s.ClearHeartbeat(t.Context()))
	ts, err = s.ReadHeartbeat(t.Context())
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}
