// Package indexer implements the background indexer (C12): the
// single-writer process that drains Completed crawl-queue items through
// extraction, chunking, embedding, and dual-store persistence, per §4.12.
package indexer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"docsmcp/internal/chunker"
	"docsmcp/internal/embeddings"
	"docsmcp/internal/errs"
	"docsmcp/internal/extractor"
	"docsmcp/internal/httpfetch"
	"docsmcp/internal/metadatastore"
	"docsmcp/internal/vectorstore"
)

// Config bounds indexer timing and chunking/embedding behavior.
type Config struct {
	LockPath            string
	HeartbeatInterval   time.Duration
	LockStaleAfter      time.Duration
	HeartbeatStaleAfter time.Duration
	LoopBackoff         time.Duration
	Chunker             chunker.Config
	EmbeddingBatchSize  int
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.LockStaleAfter <= 0 {
		c.LockStaleAfter = 600 * time.Second
	}
	if c.HeartbeatStaleAfter <= 0 {
		c.HeartbeatStaleAfter = 60 * time.Second
	}
	if c.LoopBackoff <= 0 {
		c.LoopBackoff = 10 * time.Second
	}
	if c.EmbeddingBatchSize <= 0 {
		c.EmbeddingBatchSize = 32
	}
	return c
}

// Indexer drives sites from Completed crawl items to fully embedded,
// searchable chunks.
type Indexer struct {
	cfg      Config
	store    *metadatastore.Store
	vectors  *vectorstore.Store
	fetcher  *httpfetch.Fetcher
	embedder *embeddings.Client
	log      *logrus.Logger

	lock *flock.Flock
}

// New builds an Indexer from its collaborators.
func New(cfg Config, store *metadatastore.Store, vectors *vectorstore.Store, fetcher *httpfetch.Fetcher, embedder *embeddings.Client, log *logrus.Logger) *Indexer {
	if log == nil {
		log = logrus.New()
	}
	return &Indexer{cfg: cfg.withDefaults(), store: store, vectors: vectors, fetcher: fetcher, embedder: embedder, log: log}
}

// AnotherIndexerRunning is returned by Run when a live lease is already held.
var AnotherIndexerRunning = errs.New(errs.KindLeaseDenied, "another indexer is already running")

// Run acquires the single-writer lease, starts the heartbeat, and drives
// the main loop until ctx is cancelled or there is no more work.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.acquireLease(ctx); err != nil {
		return err
	}
	defer ix.releaseLease()

	group, groupCtx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(groupCtx)
	defer stopLoop()

	group.Go(func() error {
		ix.heartbeatLoop(loopCtx)
		return nil
	})

	group.Go(func() error {
		defer stopLoop()
		return ix.mainLoop(loopCtx)
	})

	return group.Wait()
}

// mainLoop drives runOnce until ctx is cancelled or there is no more work.
func (ix *Indexer) mainLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		didWork, err := ix.runOnce(ctx)
		if err != nil {
			ix.log.WithError(err).Warn("indexer loop iteration failed, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(ix.cfg.LoopBackoff):
			}
			continue
		}
		if !didWork {
			return nil
		}
	}
}

// runOnce processes one round of sites needing indexing, returning whether
// any work was found.
func (ix *Indexer) runOnce(ctx context.Context) (bool, error) {
	pending, err := ix.store.ListSitesByStatus(ctx, metadatastore.SiteStatusPending)
	if err != nil {
		return false, err
	}
	indexing, err := ix.store.ListSitesByStatus(ctx, metadatastore.SiteStatusIndexing)
	if err != nil {
		return false, err
	}
	sites := append(pending, indexing...)
	if len(sites) == 0 {
		return false, nil
	}

	didWork := false
	for _, site := range sites {
		stats, err := ix.store.SiteStatistics(ctx, site.ID)
		if err != nil {
			return false, err
		}
		if stats.PendingCount > 0 {
			continue // crawling not done yet
		}

		if err := ix.processSiteEmbeddings(ctx, site); err != nil {
			ix.log.WithError(err).WithField("site_id", site.ID).Warn("process_site_embeddings failed")
			continue
		}
		didWork = true
	}
	return didWork, nil
}

// processSiteEmbeddings drains every Completed-but-not-yet-indexed URL for
// site through extraction, chunking, embedding, and dual-store persistence.
func (ix *Indexer) processSiteEmbeddings(ctx context.Context, site *metadatastore.Site) error {
	indexedURLs, err := ix.store.ListIndexedURLsBySite(ctx, site.ID)
	if err != nil {
		return err
	}

	todo, err := ix.completedURLsNotIndexed(ctx, site.ID, indexedURLs)
	if err != nil {
		return err
	}

	if len(todo) == 0 {
		if err := ix.store.MarkSiteIndexed(ctx, site.ID); err != nil {
			return err
		}
		if err := ix.vectors.Optimize(); err != nil {
			ix.log.WithError(err).Warn("vector store optimize failed")
		}
		return nil
	}

	if err := ix.store.UpdateSiteStatus(ctx, site.ID, metadatastore.SiteStatusIndexing, ""); err != nil {
		return err
	}

	indexedCount := site.IndexedPages
	for _, url := range todo {
		if err := ix.processPage(ctx, site.ID, url); err != nil {
			ix.log.WithError(err).WithField("url", url).Warn("page indexing failed, will retry next run")
			continue
		}
		indexedCount++
		progress := 0
		if site.TotalPages > 0 {
			progress = indexedCount * 100 / site.TotalPages
		}
		if err := ix.store.UpdateSiteProgress(ctx, site.ID, progress, site.TotalPages, indexedCount); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) completedURLsNotIndexed(ctx context.Context, siteID int64, indexedURLs map[string]bool) ([]string, error) {
	completed, err := ix.store.ListCompletedQueueURLs(ctx, siteID)
	if err != nil {
		return nil, err
	}

	var todo []string
	for _, url := range completed {
		if !indexedURLs[url] {
			todo = append(todo, url)
		}
	}
	return todo, nil
}

// processPage re-fetches, extracts, chunks, embeds, and persists one page.
// The vector store is written first, then the metadata store — a crash
// between the two leaves an orphan vector, reconciled by the consistency
// validator.
func (ix *Indexer) processPage(ctx context.Context, siteID int64, url string) error {
	body, err := ix.fetcher.Get(ctx, url)
	if err != nil {
		return err
	}

	extracted, err := extractor.Extract(body, extractor.Config{PreserveCodeBlocks: true})
	if err != nil {
		return err
	}

	chunks := chunker.ChunkContent(extracted, ix.cfg.Chunker)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return errs.New(errs.KindEmbeddingRejected, "embedding count did not match chunk count")
	}

	records := make([]vectorstore.Record, len(chunks))
	vectorIDs := make([]string, len(chunks))
	for i, c := range chunks {
		vectorIDs[i] = uuid.NewString()
		records[i] = vectorstore.Record{
			VectorID:    vectorIDs[i],
			Vector:      vectors[i],
			SiteID:      siteID,
			PageURL:     url,
			PageTitle:   extracted.Title,
			HeadingPath: c.HeadingPath,
			Content:     c.Content,
			TokenCount:  c.TokenCount,
			ChunkIndex:  i,
			CreatedAt:   time.Now(),
		}
	}

	if err := ix.vectors.Upsert(records); err != nil {
		return err
	}

	dbChunks := make([]metadatastore.IndexedChunk, len(chunks))
	for i, c := range chunks {
		dbChunks[i] = metadatastore.IndexedChunk{
			SiteID:       siteID,
			URL:          url,
			PageTitle:    sql.NullString{String: extracted.Title, Valid: extracted.Title != ""},
			HeadingPath:  sql.NullString{String: c.HeadingPath, Valid: c.HeadingPath != ""},
			ChunkContent: c.Content,
			ChunkIndex:   i,
			VectorID:     vectorIDs[i],
		}
	}
	if _, err := ix.store.CreateIndexedChunkBatch(ctx, dbChunks); err != nil {
		return err
	}
	return nil
}

// ---- Single-writer lease ----

func (ix *Indexer) acquireLease(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(ix.cfg.LockPath), 0o755); err != nil {
		return errs.Wrap(errs.KindStore, "create lock directory", err)
	}

	if existing, ok := ix.readLockTimestamp(); ok {
		age := time.Since(existing)
		if age > ix.cfg.LockStaleAfter {
			ix.log.Warn("removing stale indexer lock (exceeded lock staleness window)")
			os.Remove(ix.cfg.LockPath)
		} else {
			heartbeat, err := ix.store.ReadHeartbeat(ctx)
			if err != nil {
				return err
			}
			if heartbeat.IsZero() || time.Since(heartbeat) > ix.cfg.HeartbeatStaleAfter {
				ix.log.Warn("removing stale indexer lock (stale heartbeat)")
				os.Remove(ix.cfg.LockPath)
				_ = ix.store.ClearHeartbeat(ctx)
			} else {
				return AnotherIndexerRunning
			}
		}
	}

	ix.lock = flock.New(ix.cfg.LockPath)
	locked, err := ix.lock.TryLock()
	if err != nil {
		return errs.Wrap(errs.KindStore, "acquire indexer lock", err)
	}
	if !locked {
		return AnotherIndexerRunning
	}

	if err := os.WriteFile(ix.cfg.LockPath, []byte(strconv.FormatInt(time.Now().Unix(), 10)), 0o644); err != nil {
		ix.lock.Unlock()
		return errs.Wrap(errs.KindStore, "write indexer lock", err)
	}
	return nil
}

func (ix *Indexer) readLockTimestamp() (time.Time, bool) {
	data, err := os.ReadFile(ix.cfg.LockPath)
	if err != nil {
		return time.Time{}, false
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0), true
}

func (ix *Indexer) releaseLease() {
	if ix.lock != nil {
		ix.lock.Unlock()
	}
	os.Remove(ix.cfg.LockPath)
}

// heartbeatLoop stamps the heartbeat row every HeartbeatInterval until ctx
// is cancelled, signaling to any other indexer that this lease is alive.
func (ix *Indexer) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(ix.cfg.HeartbeatInterval)
	defer ticker.Stop()

	if err := ix.store.UpsertHeartbeat(ctx); err != nil {
		ix.log.WithError(err).Warn("heartbeat write failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ix.store.UpsertHeartbeat(ctx); err != nil {
				ix.log.WithError(err).Warn("heartbeat write failed")
			}
		}
	}
}
