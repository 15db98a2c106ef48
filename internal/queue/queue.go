// Package queue implements the queue manager (C11): batch dispatch,
// retry-delay scheduling, and cleanup over the metadata store's crawl
// queue, per §4.11.
package queue

import (
	"context"
	"math"
	"sync"
	"time"

	"docsmcp/internal/metadatastore"
)

// Config bounds retry and cleanup behavior.
type Config struct {
	MaxRetries        int
	BatchSize         int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	CleanupAge        time.Duration
	ProcessingTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 5 * time.Minute
	}
	if c.CleanupAge <= 0 {
		c.CleanupAge = 24 * time.Hour
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = 10 * time.Minute
	}
	return c
}

// Stats summarizes a site's (or the whole queue's) current state.
type Stats struct {
	Pending           int
	Processing        int
	Completed         int
	Failed            int
	Total             int
	RetryRatePercent  float64
	OldestPendingAgeS float64
}

// Manager wraps a metadatastore.Store with queue-dispatch semantics: batch
// fetch, retry backoff scheduling, and in-memory processing-start tracking.
type Manager struct {
	store *metadatastore.Store
	cfg   Config

	mu         sync.Mutex
	startTimes map[int64]time.Time
}

// New builds a Manager over store.
func New(store *metadatastore.Store, cfg Config) *Manager {
	return &Manager{store: store, cfg: cfg.withDefaults(), startTimes: map[int64]time.Time{}}
}

// Add adds a pending entry for url on siteID; an existing entry for the
// same (siteID, url) is left unchanged, whatever its status. priority is
// accepted for interface symmetry with a future priority queue but
// dispatch order is always created_date ascending (FIFO modulo retries).
func (m *Manager) Add(ctx context.Context, siteID int64, url string, priority int) error {
	return m.store.AppendQueueItem(ctx, siteID, url)
}

// NextBatch returns up to BatchSize eligible items for siteID, marking each
// Processing and recording its dispatch time.
func (m *Manager) NextBatch(ctx context.Context, siteID int64) ([]*metadatastore.QueueItem, error) {
	var batch []*metadatastore.QueueItem
	for len(batch) < m.cfg.BatchSize {
		item, err := m.store.NextQueueItem(ctx, siteID, m.cfg.MaxRetries)
		if err != nil {
			return nil, err
		}
		if item == nil {
			break
		}
		if err := m.store.MarkQueueItemProcessing(ctx, item.ID); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.startTimes[item.ID] = time.Now()
		m.mu.Unlock()
		batch = append(batch, item)
	}
	return batch, nil
}

// Complete marks id Completed and clears its in-memory tracking.
func (m *Manager) Complete(ctx context.Context, id int64) error {
	m.mu.Lock()
	delete(m.startTimes, id)
	m.mu.Unlock()
	return m.store.MarkQueueItemCompleted(ctx, id)
}

// Fail records a failure for id: increments retry_count, and either marks
// it permanently Failed (if exhausted) or reverts it to Pending. The
// exponential retry delay is advisory (storage only flips status) since
// dispatch order is driven by created_date, not a scheduled-for timestamp.
func (m *Manager) Fail(ctx context.Context, id int64, errMsg string) error {
	m.mu.Lock()
	delete(m.startTimes, id)
	m.mu.Unlock()
	return m.store.IncrementRetry(ctx, id, m.cfg.MaxRetries, errMsg)
}

// RetryDelay computes the advisory backoff for a given retry_count:
// min(maxRetryDelay, initialRetryDelay * 2^(retryCount-1)).
func (m *Manager) RetryDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	delay := time.Duration(float64(m.cfg.InitialRetryDelay) * math.Pow(2, float64(retryCount-1)))
	if delay > m.cfg.MaxRetryDelay {
		delay = m.cfg.MaxRetryDelay
	}
	return delay
}

// Stats reports aggregate counts for siteID, or across all sites if siteID
// is nil. OldestPendingAgeS always covers Pending items of every site.
func (m *Manager) Stats(ctx context.Context, siteID *int64) (*Stats, error) {
	var perStatus map[string]int
	var err error
	if siteID != nil {
		perStatus, err = m.store.QueueStats(ctx, *siteID)
	} else {
		perStatus, err = m.aggregateAllSites(ctx)
	}
	if err != nil {
		return nil, err
	}

	s := &Stats{
		Pending:    perStatus[metadatastore.QueueStatusPending],
		Processing: perStatus[metadatastore.QueueStatusProcessing],
		Completed:  perStatus[metadatastore.QueueStatusCompleted],
		Failed:     perStatus[metadatastore.QueueStatusFailed],
	}
	s.Total = s.Pending + s.Processing + s.Completed + s.Failed
	if s.Total > 0 {
		s.RetryRatePercent = 100 * float64(s.Failed) / float64(s.Total)
	}

	oldest, err := m.store.OldestPendingCreated(ctx)
	if err != nil {
		return nil, err
	}
	if !oldest.IsZero() {
		s.OldestPendingAgeS = time.Since(oldest).Seconds()
	}
	return s, nil
}

func (m *Manager) aggregateAllSites(ctx context.Context) (map[string]int, error) {
	sites, err := m.store.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	totals := map[string]int{}
	for _, site := range sites {
		perStatus, err := m.store.QueueStats(ctx, site.ID)
		if err != nil {
			return nil, err
		}
		for status, n := range perStatus {
			totals[status] += n
		}
	}
	return totals, nil
}

// CleanupOld deletes Completed/Failed items older than CleanupAge, across
// all sites; it cannot be restricted to a single site.
func (m *Manager) CleanupOld(ctx context.Context) (int64, error) {
	return m.store.CleanupOldQueueItems(ctx, time.Now().Add(-m.cfg.CleanupAge))
}

// ResetStuck reverts any Processing item older than ProcessingTimeout back
// to Pending and drops stale in-memory tracking entries.
func (m *Manager) ResetStuck(ctx context.Context) (int64, error) {
	n, err := m.store.ResetStuckProcessing(ctx, time.Now().Add(-m.cfg.ProcessingTimeout))
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	cutoff := time.Now().Add(-m.cfg.ProcessingTimeout)
	for id, started := range m.startTimes {
		if started.Before(cutoff) {
			delete(m.startTimes, id)
		}
	}
	m.mu.Unlock()

	return n, nil
}
