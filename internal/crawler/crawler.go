// Package crawler implements the crawl driver (C10): the per-site loop that
// walks a metadata-store-backed queue, respecting robots policy and rate
// limits, and hands Completed pages off to the indexer, per §4.10.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"docsmcp/internal/errs"
	"docsmcp/internal/httpfetch"
	"docsmcp/internal/linkextract"
	"docsmcp/internal/metadatastore"
	"docsmcp/internal/robots"
)

// Stats summarizes one crawl_site run.
type Stats struct {
	TotalURLs        int
	SuccessfulCrawls int
	FailedCrawls     int
	RobotsBlocked    int
	Duration         time.Duration
}

// Config bounds a crawl run.
type Config struct {
	MaxRetries int
	UserAgent  string
}

// Driver ties the fetcher, robots cache, link extractor, and metadata store
// together to run one site's crawl to completion.
type Driver struct {
	fetcher *httpfetch.Fetcher
	robots  *robots.Cache
	store   *metadatastore.Store
	cfg     Config
	log     *logrus.Logger
}

// New builds a Driver from its collaborators.
func New(fetcher *httpfetch.Fetcher, robotsCache *robots.Cache, store *metadatastore.Store, cfg Config, log *logrus.Logger) *Driver {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = httpfetch.UserAgent
	}
	if log == nil {
		log = logrus.New()
	}
	return &Driver{fetcher: fetcher, robots: robotsCache, store: store, cfg: cfg, log: log}
}

// CrawlSite runs a site's crawl loop to completion and reports Stats.
func (d *Driver) CrawlSite(ctx context.Context, siteID int64, baseURL string) (*Stats, error) {
	start := time.Now()

	base, err := url.Parse(baseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errs.New(errs.KindUser, fmt.Sprintf("invalid base url %q", baseURL))
	}

	policy, err := d.robots.Fetch(ctx, base)
	if err != nil {
		return nil, err
	}

	if err := d.store.AppendQueueItem(ctx, siteID, baseURL); err != nil {
		return nil, err
	}

	stats := &Stats{}

	for {
		if err := ctx.Err(); err != nil {
			return stats, errs.Wrap(errs.KindInterrupted, "crawl interrupted", err)
		}

		item, err := d.store.NextQueueItem(ctx, siteID, d.cfg.MaxRetries)
		if err != nil {
			return stats, err
		}
		if item == nil {
			break
		}
		stats.TotalURLs++

		if err := d.store.MarkQueueItemProcessing(ctx, item.ID); err != nil {
			return stats, err
		}

		pageURL, err := url.Parse(item.URL)
		if err != nil {
			_ = d.store.IncrementRetry(ctx, item.ID, d.cfg.MaxRetries, err.Error())
			stats.FailedCrawls++
			continue
		}

		if !policy.Allowed(pageURL.Path, d.cfg.UserAgent) {
			if err := d.store.MarkQueueItemCompleted(ctx, item.ID); err != nil {
				return stats, err
			}
			stats.RobotsBlocked++
			continue
		}

		body, err := d.fetcher.Get(ctx, item.URL)
		if err != nil {
			d.log.WithError(err).WithField("url", item.URL).Warn("crawl fetch failed")
			if incErr := d.store.IncrementRetry(ctx, item.ID, d.cfg.MaxRetries, err.Error()); incErr != nil {
				return stats, incErr
			}
			stats.FailedCrawls++
			continue
		}

		links, err := linkextract.Extract(body, pageURL, base)
		if err != nil {
			d.log.WithError(err).WithField("url", item.URL).Warn("link extraction failed")
		} else if len(links) > 0 {
			urls := make([]string, len(links))
			for i, l := range links {
				urls[i] = l.String()
			}
			if _, err := d.store.AppendQueueBatch(ctx, siteID, urls); err != nil {
				return stats, err
			}
		}

		if err := d.store.MarkQueueItemCompleted(ctx, item.ID); err != nil {
			return stats, err
		}
		stats.SuccessfulCrawls++
	}

	stats.Duration = time.Since(start)
	return stats, nil
}
