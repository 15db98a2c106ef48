package queue_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsmcp/internal/metadatastore"
	"docsmcp/internal/queue"
)

func newManager(t *testing.T) (*queue.Manager, *metadatastore.Store, int64) {
	t.Helper()
	store, err := metadatastore.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	siteID, err := store.CreateSite(t.Context(), "https://ex.test/", "Example", "1.0")
	require.NoError(t, err)

	m := queue.New(store, queue.Config{MaxRetries: 3, BatchSize: 2, InitialRetryDelay: time.Second, MaxRetryDelay: 8 * time.Second})
	return m, store, siteID
}

func TestNextBatchRespectsBatchSize(t *testing.T) {
	m, _, siteID := newManager(t)
	for _, u := range []string{"https://ex.test/a", "https://ex.test/b", "https://ex.test/c"} {
		require.NoError(t, m.Add(t.Context(), siteID, u, 0))
	}

	batch, err := m.NextBatch(t.Context(), siteID)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestCompleteAndFailTransitions(t *testing.T) {
	m, _, siteID := newManager(t)
	require.NoError(t, m.Add(t.Context(), siteID, "https://ex.test/a", 0))

	batch, err := m.NextBatch(t.Context(), siteID)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, m.Complete(t.Context(), batch[0].ID))

	stats, err := m.Stats(t.Context(), &siteID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
}

func TestRetryDelayGrowsExponentiallyAndCaps(t *testing.T) {
	m, _, _ := newManager(t)
	assert.Equal(t, time.Duration(0), m.RetryDelay(0))
	assert.Equal(t, time.Second, m.RetryDelay(1))
	assert.Equal(t, 2*time.Second, m.RetryDelay(2))
	assert.Equal(t, 4*time.Second, m.RetryDelay(3))
	assert.Equal(t, 8*time.Second, m.RetryDelay(4)) // would be 8s, at the cap
	assert.Equal(t, 8*time.Second, m.RetryDelay(5)) // would be 16s, capped to 8s
}

func TestFailExhaustsRetriesToPermanentFailure(t *testing.T) {
	m, _, siteID := newManager(t)
	require.NoError(t, m.Add(t.Context(), siteID, "https://ex.test/a", 0))

	batch, err := m.NextBatch(t.Context(), siteID)
	require.NoError(t, err)
	id := batch[0].ID

	require.NoError(t, m.Fail(t.Context(), id, "boom"))
	require.NoError(t, m.Fail(t.Context(), id, "boom"))
	require.NoError(t, m.Fail(t.Context(), id, "boom"))

	stats, err := m.Stats(t.Context(), &siteID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Pending)
}

func TestResetStuckRevertsToPending(t *testing.T) {
	m, store, siteID := newManager(t)
	require.NoError(t, m.Add(t.Context(), siteID, "https://ex.test/a", 0))
	_, err := m.NextBatch(t.Context(), siteID)
	require.NoError(t, err)

	_, err = store.ResetStuckProcessing(t.Context(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	stats, err := m.Stats(t.Context(), &siteID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}
