// Package embeddings implements the embedding client (C7): calling an
// external embedding service in single and batch shapes, with retry,
// health checking, and dimension-consistency enforcement, per §4.7.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"docsmcp/internal/errs"
)

// Config holds embedder configuration.
type Config struct {
	BaseURL       string
	Model         string
	BatchSize     int
	RetryAttempts int
	Timeout       time.Duration
}

// Client talks to an Ollama-compatible embedding service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logrus.Logger

	mu  sync.Mutex
	dim int // observed dimension; 0 until the first successful response
}

// New builds a Client, filling in defaults for zero-valued fields.
func New(cfg Config, log *logrus.Logger) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type singlePromptRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type singlePromptResponse struct {
	Embedding []float32 `json:"embedding"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Embed embeds a single piece of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errs.New(errs.KindEmbeddingRejected, "embedding service returned no vectors")
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, splitting into sub-batches of BatchSize.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += c.cfg.BatchSize {
		end := i + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// embedWithRetry performs one sub-batch call, retrying on transport/5xx
// errors with exponential backoff (base 2) up to RetryAttempts; 4xx errors
// fail fast.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		vecs, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		if attempt == c.cfg.RetryAttempts {
			break
		}
		delay := backoff(attempt)
		c.log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Warn("embedding request failed, retrying")
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindInterrupted, "embedding retry interrupted", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	seconds := 1
	for i := 1; i < attempt; i++ {
		seconds *= 2
	}
	return time.Duration(seconds) * time.Second
}

func retryable(err error) bool {
	return errs.Is(err, errs.KindEmbeddingUnavailable) || errs.Is(err, errs.KindEmbeddingTimeout)
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 1 {
		v, err := c.doRequest(ctx, singlePromptRequest{Model: c.cfg.Model, Prompt: texts[0]}, func(body []byte) ([][]float32, error) {
			var parsed singlePromptResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				return nil, errs.Wrap(errs.KindEmbeddingRejected, "decode embedding response", err)
			}
			return [][]float32{parsed.Embedding}, nil
		})
		if err != nil {
			return nil, err
		}
		if err := c.checkDimension(v); err != nil {
			return nil, err
		}
		return v, nil
	}

	vecs, err := c.doRequest(ctx, embedRequest{Model: c.cfg.Model, Input: texts}, func(body []byte) ([][]float32, error) {
		var parsed embedResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, errs.Wrap(errs.KindEmbeddingRejected, "decode embedding response", err)
		}
		if len(parsed.Embeddings) != len(texts) {
			return nil, errs.New(errs.KindEmbeddingRejected, "embedding response count mismatch")
		}
		return parsed.Embeddings, nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.checkDimension(vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (c *Client) doRequest(ctx context.Context, payload any, decode func([]byte) ([][]float32, error)) ([][]float32, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindEmbeddingRejected, "marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errs.Wrap(errs.KindEmbeddingRejected, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindEmbeddingTimeout, "embedding request timed out", err)
		}
		return nil, errs.Wrap(errs.KindEmbeddingUnavailable, "embedding service unreachable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.KindEmbeddingUnavailable, fmt.Sprintf("embedding service error %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.KindEmbeddingRejected, fmt.Sprintf("embedding request rejected %d: %s", resp.StatusCode, string(body)))
	}

	return decode(body)
}

func (c *Client) checkDimension(vecs [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range vecs {
		if c.dim == 0 {
			c.dim = len(v)
			continue
		}
		if len(v) != c.dim {
			return errs.New(errs.KindDimensionMismatch, fmt.Sprintf("embedding dimension changed from %d to %d", c.dim, len(v)))
		}
	}
	return nil
}

// HealthCheck confirms the service is reachable and the configured model is
// present in its model listing.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return errs.Wrap(errs.KindEmbeddingRejected, "build health check request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindEmbeddingUnavailable, "embedding service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.KindEmbeddingUnavailable, fmt.Sprintf("health check returned status %d", resp.StatusCode))
	}

	var parsed tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return errs.Wrap(errs.KindEmbeddingRejected, "decode health check response", err)
	}
	for _, m := range parsed.Models {
		if m.Name == c.cfg.Model || strings.HasPrefix(m.Name, c.cfg.Model+":") {
			return nil
		}
	}
	return errs.New(errs.KindEmbeddingRejected, fmt.Sprintf("model %q not found in service model listing", c.cfg.Model))
}

// Estimate approximates token count for a text using the chunker's heuristic
// (round(words/0.75 + punct*0.1)); duplicated here, not imported, to keep
// embeddings free of a chunker dependency.
func Estimate(text string) int {
	words := len(strings.Fields(text))
	punct := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punct++
		}
	}
	return int(float64(words)/0.75 + float64(punct)*0.1 + 0.5)
}
