// Package metadatastore implements the relational metadata store (C8):
// sites, crawl queue, indexed chunks, and the indexer heartbeat, per §4.8.
package metadatastore

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"docsmcp/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	base_url TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending','indexing','completed','failed')),
	progress_percent INTEGER NOT NULL DEFAULT 0,
	total_pages INTEGER NOT NULL DEFAULT 0,
	indexed_pages INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	indexed_date TIMESTAMP,
	last_heartbeat TIMESTAMP
);

CREATE TABLE IF NOT EXISTS crawl_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (site_id, url)
);

CREATE TABLE IF NOT EXISTS indexed_chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	page_title TEXT,
	heading_path TEXT,
	chunk_content TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	vector_id TEXT NOT NULL UNIQUE,
	indexed_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (site_id, url, chunk_index)
);

CREATE TABLE IF NOT EXISTS indexer_heartbeat (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	indexer_heartbeat_ts TIMESTAMP NOT NULL
);
`

// Site statuses.
const (
	SiteStatusPending   = "pending"
	SiteStatusIndexing  = "indexing"
	SiteStatusCompleted = "completed"
	SiteStatusFailed    = "failed"
)

// Queue item statuses.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// Site is a crawled documentation site.
type Site struct {
	ID              int64
	BaseURL         string
	Name            string
	Version         string
	Status          string
	ProgressPercent int
	TotalPages      int
	IndexedPages    int
	ErrorMessage    sql.NullString
	CreatedDate     time.Time
	IndexedDate     sql.NullTime
	LastHeartbeat   sql.NullTime
}

// QueueItem is one URL pending, in-flight, or resolved in a site's crawl queue.
type QueueItem struct {
	ID           int64
	SiteID       int64
	URL          string
	Status       string
	RetryCount   int
	ErrorMessage sql.NullString
	CreatedDate  time.Time
}

// IndexedChunk is one semantic chunk persisted against its page and site.
type IndexedChunk struct {
	ID          int64
	SiteID      int64
	URL         string
	PageTitle   sql.NullString
	HeadingPath sql.NullString
	ChunkContent string
	ChunkIndex  int
	VectorID    string
	IndexedDate time.Time
}

// SiteStats summarizes a site's chunk and queue counts.
type SiteStats struct {
	ChunkCount   int
	PendingCount int
	FailedCount  int
}

// Store wraps a sqlite-backed metadata database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// migrates the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "open metadata store", err)
	}
	db.SetMaxOpenConns(8)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindStoreCorrupt, "migrate metadata schema", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---- Sites ----

// CreateSite inserts a new pending site.
func (s *Store) CreateSite(ctx context.Context, baseURL, name, version string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (base_url, name, version, status) VALUES (?, ?, ?, ?)`,
		baseURL, name, version, SiteStatusPending)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "create site", err)
	}
	return res.LastInsertId()
}

func scanSite(row interface {
	Scan(dest ...any) error
}) (*Site, error) {
	var site Site
	err := row.Scan(&site.ID, &site.BaseURL, &site.Name, &site.Version, &site.Status,
		&site.ProgressPercent, &site.TotalPages, &site.IndexedPages, &site.ErrorMessage,
		&site.CreatedDate, &site.IndexedDate, &site.LastHeartbeat)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.KindUser, "site not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "scan site", err)
	}
	return &site, nil
}

const siteColumns = `id, base_url, name, version, status, progress_percent, total_pages, indexed_pages, error_message, created_date, indexed_date, last_heartbeat`

// GetSiteByID looks up a site by its primary key.
func (s *Store) GetSiteByID(ctx context.Context, id int64) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	return scanSite(row)
}

// GetSiteByBaseURL looks up a site by its unique base URL.
func (s *Store) GetSiteByBaseURL(ctx context.Context, baseURL string) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE base_url = ?`, baseURL)
	return scanSite(row)
}

// GetSiteByNameVersion looks up a site by its (name, version) pair.
func (s *Store) GetSiteByNameVersion(ctx context.Context, name, version string) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE name = ? AND version = ?`, name, version)
	return scanSite(row)
}

// ListSites returns every site, ordered by creation date.
func (s *Store) ListSites(ctx context.Context) ([]*Site, error) {
	return s.listSitesWhere(ctx, "1=1")
}

// ListSitesByStatus returns all sites in the given status.
func (s *Store) ListSitesByStatus(ctx context.Context, status string) ([]*Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE status = ? ORDER BY created_date`, status)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "list sites by status", err)
	}
	defer rows.Close()
	return scanSites(rows)
}

func (s *Store) listSitesWhere(ctx context.Context, where string) ([]*Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE `+where+` ORDER BY created_date`)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "list sites", err)
	}
	defer rows.Close()
	return scanSites(rows)
}

func scanSites(rows *sql.Rows) ([]*Site, error) {
	var out []*Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

// UpdateSiteStatus updates a site's status and optional error message.
func (s *Store) UpdateSiteStatus(ctx context.Context, id int64, status string, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET status = ?, error_message = NULLIF(?, '') WHERE id = ?`, status, errMsg, id)
	if err != nil {
		return errs.Wrap(errs.KindStore, "update site status", err)
	}
	return nil
}

// UpdateSiteProgress updates a site's progress counters.
func (s *Store) UpdateSiteProgress(ctx context.Context, id int64, progressPercent, totalPages, indexedPages int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sites SET progress_percent = ?, total_pages = ?, indexed_pages = ? WHERE id = ?`,
		progressPercent, totalPages, indexedPages, id)
	if err != nil {
		return errs.Wrap(errs.KindStore, "update site progress", err)
	}
	return nil
}

// MarkSiteIndexed sets a site's status to completed and stamps indexed_date.
func (s *Store) MarkSiteIndexed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sites SET status = ?, indexed_date = CURRENT_TIMESTAMP WHERE id = ?`, SiteStatusCompleted, id)
	if err != nil {
		return errs.Wrap(errs.KindStore, "mark site indexed", err)
	}
	return nil
}

// TouchSiteHeartbeat stamps a site's last_heartbeat to now.
func (s *Store) TouchSiteHeartbeat(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET last_heartbeat = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.KindStore, "touch site heartbeat", err)
	}
	return nil
}

// DeleteSite removes a site and cascades to its queue items and chunks.
func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.KindStore, "delete site", err)
	}
	return nil
}

// SiteStatistics reports a site's chunk count and pending/failed queue counts.
func (s *Store) SiteStatistics(ctx context.Context, id int64) (*SiteStats, error) {
	var stats SiteStats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_chunks WHERE site_id = ?`, id)
	if err := row.Scan(&stats.ChunkCount); err != nil {
		return nil, errs.Wrap(errs.KindStore, "count chunks", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_queue WHERE site_id = ? AND status = ?`, id, QueueStatusPending)
	if err := row.Scan(&stats.PendingCount); err != nil {
		return nil, errs.Wrap(errs.KindStore, "count pending queue items", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_queue WHERE site_id = ? AND status = ?`, id, QueueStatusFailed)
	if err := row.Scan(&stats.FailedCount); err != nil {
		return nil, errs.Wrap(errs.KindStore, "count failed queue items", err)
	}
	return &stats, nil
}

// ---- Crawl queue ----

// AppendQueueItem inserts a pending URL for a site; a duplicate (site_id,
// url) pair is silently ignored.
func (s *Store) AppendQueueItem(ctx context.Context, siteID int64, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crawl_queue (site_id, url, status) VALUES (?, ?, ?) ON CONFLICT (site_id, url) DO NOTHING`,
		siteID, url, QueueStatusPending)
	if err != nil {
		return errs.Wrap(errs.KindStore, "append queue item", err)
	}
	return nil
}

// AppendQueueBatch inserts a batch of URLs for a site in one transaction;
// a per-item failure is skipped, not fatal to the batch, and is not
// reported: the caller only sees the count of rows inserted.
func (s *Store) AppendQueueBatch(ctx context.Context, siteID int64, urls []string) (inserted int, err error) {
	if len(urls) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "begin queue batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO crawl_queue (site_id, url, status) VALUES (?, ?, ?) ON CONFLICT (site_id, url) DO NOTHING`)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "prepare queue batch insert", err)
	}
	defer stmt.Close()

	for _, u := range urls {
		res, execErr := stmt.ExecContext(ctx, siteID, u, QueueStatusPending)
		if execErr != nil {
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.Wrap(errs.KindStore, "commit queue batch", err)
	}
	return inserted, nil
}

// NextQueueItem returns the oldest item for site eligible to run: pending,
// or failed with retry_count below maxRetries. Returns nil, nil if none.
func (s *Store) NextQueueItem(ctx context.Context, siteID int64, maxRetries int) (*QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, url, status, retry_count, error_message, created_date FROM crawl_queue
		 WHERE site_id = ? AND (status = ? OR (status = ? AND retry_count < ?))
		 ORDER BY created_date ASC LIMIT 1`,
		siteID, QueueStatusPending, QueueStatusFailed, maxRetries)

	var item QueueItem
	err := row.Scan(&item.ID, &item.SiteID, &item.URL, &item.Status, &item.RetryCount, &item.ErrorMessage, &item.CreatedDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "fetch next queue item", err)
	}
	return &item, nil
}

// MarkQueueItemProcessing transitions item to processing.
func (s *Store) MarkQueueItemProcessing(ctx context.Context, id int64) error {
	return s.updateQueueStatus(ctx, id, QueueStatusProcessing, "")
}

// MarkQueueItemCompleted transitions item to completed.
func (s *Store) MarkQueueItemCompleted(ctx context.Context, id int64) error {
	return s.updateQueueStatus(ctx, id, QueueStatusCompleted, "")
}

func (s *Store) updateQueueStatus(ctx context.Context, id int64, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE crawl_queue SET status = ?, error_message = NULLIF(?, '') WHERE id = ?`, status, errMsg, id)
	if err != nil {
		return errs.Wrap(errs.KindStore, "update queue item status", err)
	}
	return nil
}

// IncrementRetry bumps an item's retry_count and records the failure message,
// reverting it to Pending if it still has retries left, else Failed.
func (s *Store) IncrementRetry(ctx context.Context, id int64, maxRetries int, errMsg string) error {
	row := s.db.QueryRowContext(ctx, `SELECT retry_count FROM crawl_queue WHERE id = ?`, id)
	var retryCount int
	if err := row.Scan(&retryCount); err != nil {
		return errs.Wrap(errs.KindStore, "read retry count", err)
	}
	retryCount++
	status := QueueStatusPending
	if retryCount >= maxRetries {
		status = QueueStatusFailed
	}
	_, err := s.db.ExecContext(ctx, `UPDATE crawl_queue SET retry_count = ?, status = ?, error_message = ? WHERE id = ?`,
		retryCount, status, errMsg, id)
	if err != nil {
		return errs.Wrap(errs.KindStore, "increment retry", err)
	}
	return nil
}

// CleanupOldQueueItems removes completed and failed items older than
// olderThan.
func (s *Store) CleanupOldQueueItems(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM crawl_queue WHERE status IN (?, ?) AND created_date < ?`,
		QueueStatusCompleted, QueueStatusFailed, olderThan)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "cleanup old queue items", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing reverts any Processing item older than timeout back
// to Pending, recovering from a crashed or killed worker.
func (s *Store) ResetStuckProcessing(ctx context.Context, timeout time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crawl_queue SET status = ? WHERE status = ? AND created_date < ?`,
		QueueStatusPending, QueueStatusProcessing, timeout)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "reset stuck queue items", err)
	}
	return res.RowsAffected()
}

// QueueStats reports per-status counts for a site.
func (s *Store) QueueStats(ctx context.Context, siteID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM crawl_queue WHERE site_id = ? GROUP BY status`, siteID)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "queue stats", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errs.Wrap(errs.KindStore, "scan queue stats", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// OldestPendingCreated returns the created_date of the oldest Pending item
// across every site, or the zero value if none exist.
func (s *Store) OldestPendingCreated(ctx context.Context) (time.Time, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT MIN(created_date) FROM crawl_queue WHERE status = ?`, QueueStatusPending)
	var ts sql.NullTime
	if err := row.Scan(&ts); err != nil {
		return time.Time{}, errs.Wrap(errs.KindStore, "oldest pending item", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}

// ListCompletedQueueURLs returns every URL whose crawl queue item for site
// has reached the completed status, the indexer's source set for "pages
// the crawler finished fetching."
func (s *Store) ListCompletedQueueURLs(ctx context.Context, siteID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM crawl_queue WHERE site_id = ? AND status = ?`, siteID, QueueStatusCompleted)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "list completed queue urls", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, errs.Wrap(errs.KindStore, "scan completed queue url", err)
		}
		out = append(out, url)
	}
	return out, rows.Err()
}

// ---- Indexed chunks ----

// CreateIndexedChunk inserts a single indexed chunk.
func (s *Store) CreateIndexedChunk(ctx context.Context, c IndexedChunk) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO indexed_chunks (site_id, url, page_title, heading_path, chunk_content, chunk_index, vector_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.SiteID, c.URL, c.PageTitle, c.HeadingPath, c.ChunkContent, c.ChunkIndex, c.VectorID)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "create indexed chunk", err)
	}
	return res.LastInsertId()
}

// CreateIndexedChunkBatch inserts chunks in one transaction; a per-item
// failure is skipped without being reported (the caller only sees the
// count of rows inserted), and the transaction still commits what
// succeeded.
func (s *Store) CreateIndexedChunkBatch(ctx context.Context, chunks []IndexedChunk) (inserted int, err error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "begin chunk batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO indexed_chunks (site_id, url, page_title, heading_path, chunk_content, chunk_index, vector_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, errs.Wrap(errs.KindStore, "prepare chunk batch insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, execErr := stmt.ExecContext(ctx, c.SiteID, c.URL, c.PageTitle, c.HeadingPath, c.ChunkContent, c.ChunkIndex, c.VectorID); execErr != nil {
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.Wrap(errs.KindStore, "commit chunk batch", err)
	}
	return inserted, nil
}

const chunkColumns = `id, site_id, url, page_title, heading_path, chunk_content, chunk_index, vector_id, indexed_date`

func scanChunk(row interface{ Scan(dest ...any) error }) (*IndexedChunk, error) {
	var c IndexedChunk
	err := row.Scan(&c.ID, &c.SiteID, &c.URL, &c.PageTitle, &c.HeadingPath, &c.ChunkContent, &c.ChunkIndex, &c.VectorID, &c.IndexedDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "scan indexed chunk", err)
	}
	return &c, nil
}

// GetIndexedChunkByID looks up a chunk by its primary key.
func (s *Store) GetIndexedChunkByID(ctx context.Context, id int64) (*IndexedChunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM indexed_chunks WHERE id = ?`, id)
	return scanChunk(row)
}

// GetIndexedChunkByVectorID looks up a chunk by its unique vector_id.
func (s *Store) GetIndexedChunkByVectorID(ctx context.Context, vectorID string) (*IndexedChunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM indexed_chunks WHERE vector_id = ?`, vectorID)
	return scanChunk(row)
}

// ListIndexedChunksBySite returns every chunk for a site, ordered by URL
// then chunk_index.
func (s *Store) ListIndexedChunksBySite(ctx context.Context, siteID int64) ([]*IndexedChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM indexed_chunks WHERE site_id = ? ORDER BY url, chunk_index`, siteID)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "list indexed chunks", err)
	}
	defer rows.Close()

	var out []*IndexedChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListIndexedURLsBySite returns the distinct URLs already indexed for a site.
func (s *Store) ListIndexedURLsBySite(ctx context.Context, siteID int64) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT url FROM indexed_chunks WHERE site_id = ?`, siteID)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "list indexed urls", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, errs.Wrap(errs.KindStore, "scan indexed url", err)
		}
		out[url] = true
	}
	return out, rows.Err()
}

// CountIndexedChunksBySite returns the number of chunks persisted for a site.
func (s *Store) CountIndexedChunksBySite(ctx context.Context, siteID int64) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_chunks WHERE site_id = ?`, siteID)
	if err := row.Scan(&count); err != nil {
		return 0, errs.Wrap(errs.KindStore, "count indexed chunks", err)
	}
	return count, nil
}

// DeleteIndexedChunksBySite removes all chunks for a site.
func (s *Store) DeleteIndexedChunksBySite(ctx context.Context, siteID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_chunks WHERE site_id = ?`, siteID)
	if err != nil {
		return errs.Wrap(errs.KindStore, "delete indexed chunks", err)
	}
	return nil
}

// AllVectorIDs returns every vector_id currently recorded in the metadata
// store, across all sites whatever their status. The consistency
// validator's set "M" is narrower: it covers Completed sites only.
func (s *Store) AllVectorIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT vector_id FROM indexed_chunks`)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "list vector ids", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.KindStore, "scan vector id", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ---- Indexer heartbeat ----

// UpsertHeartbeat stamps the single-row indexer heartbeat to now.
func (s *Store) UpsertHeartbeat(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexer_heartbeat (id, indexer_heartbeat_ts) VALUES (1, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET indexer_heartbeat_ts = CURRENT_TIMESTAMP`)
	if err != nil {
		return errs.Wrap(errs.KindStore, "upsert heartbeat", err)
	}
	return nil
}

// ReadHeartbeat returns the last recorded heartbeat timestamp, or the zero
// value if none has ever been written.
func (s *Store) ReadHeartbeat(ctx context.Context) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, `SELECT indexer_heartbeat_ts FROM indexer_heartbeat WHERE id = 1`)
	var ts time.Time
	err := row.Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errs.Wrap(errs.KindStore, "read heartbeat", err)
	}
	return ts, nil
}

// ClearHeartbeat removes the heartbeat row, releasing the indexer lease's
// database-side signal.
func (s *Store) ClearHeartbeat(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexer_heartbeat WHERE id = 1`)
	if err != nil {
		return errs.Wrap(errs.KindStore, "clear heartbeat", err)
	}
	return nil
}
