// Package httpfetch implements the polite HTTP GET client (C1): rate
// limiting, retry-with-backoff, and a fixed timeout per attempt.
package httpfetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"docsmcp/internal/errs"
)

// UserAgent is the fixed product identifier sent with every request.
const UserAgent = "docs-mcp/0.1.0 (Documentation Indexer)"

// Config holds the fetcher's tunables. Zero values take the documented
// defaults in New.
type Config struct {
	RateLimit  time.Duration // minimum interval between requests; default 250ms
	MaxRetries int           // default 3
	RetryDelay time.Duration // default 30s
	Timeout    time.Duration // per-attempt timeout; default 30s
}

// Fetcher performs polite GETs. Each instance owns its own rate-limit state,
// per §5's "HTTP fetcher rate limit state is local to one instance".
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *logrus.Logger
}

// New creates a Fetcher, applying documented defaults for zero fields.
func New(cfg Config, log *logrus.Logger) *Fetcher {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 250 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimit), 1),
		log:     log,
	}
}

// Get fetches url's body, retrying transport errors, timeouts, 5xx, and 429
// up to MaxRetries times with a fixed delay between attempts.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries+1; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, errs.Wrap(errs.KindInterrupted, "rate limiter wait canceled", err)
		}

		body, status, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}

		if httpErr, ok := err.(*errs.Error); ok && httpErr.Kind == errs.KindHTTPStatus {
			if !errs.Retryable(status) {
				return nil, err
			}
		}
		lastErr = err

		if attempt <= f.cfg.MaxRetries {
			f.log.WithFields(logrus.Fields{"url": url, "attempt": attempt, "error": err}).
				Warn("fetch attempt failed, retrying")
			select {
			case <-time.After(f.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, errs.Wrap(errs.KindInterrupted, "canceled during retry backoff", ctx.Err())
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errs.Wrap(errs.KindUser, "build request", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, errs.Wrap(errs.KindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errs.Wrap(errs.KindTransport, "read body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, errs.HTTPStatusErr(resp.StatusCode, "non-2xx response")
	}
	return body, resp.StatusCode, nil
}
