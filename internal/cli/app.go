// Package cli implements the command-line front end (§6.5): cobra commands
// wiring every component together and mapping error kinds to exit codes.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"docsmcp/internal/chunker"
	"docsmcp/internal/config"
	"docsmcp/internal/consistency"
	"docsmcp/internal/crawler"
	"docsmcp/internal/embeddings"
	"docsmcp/internal/errs"
	"docsmcp/internal/httpfetch"
	"docsmcp/internal/indexer"
	"docsmcp/internal/mcpserver"
	"docsmcp/internal/metadatastore"
	"docsmcp/internal/queue"
	"docsmcp/internal/robots"
	"docsmcp/internal/vectorstore"
)

// dataDir is the persistent flag every subcommand reads to locate
// config.toml, metadata.db, vectors/, and .indexer.lock.
var dataDir string

// app wires every component over a single data directory. Built fresh by
// each command's RunE so that each run's lifetime owns its own store
// handles and is torn down with Close.
type app struct {
	cfg       *config.Config
	store     *metadatastore.Store
	vectors   *vectorstore.Store
	fetcher   *httpfetch.Fetcher
	embedder  *embeddings.Client
	robots    *robots.Cache
	crawler   *crawler.Driver
	queue     *queue.Manager
	indexer   *indexer.Indexer
	validator *consistency.Validator
	log       *logrus.Logger
}

func newApp(dataDir string) (*app, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, errs.Wrap(errs.KindUser, "load configuration", err)
	}

	log := logrus.New()

	store, err := metadatastore.Open(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.Open(filepath.Join(dataDir, "vectors"))
	if err != nil {
		store.Close()
		return nil, err
	}

	crawlFetcher := httpfetch.New(httpfetch.Config{}, log)
	indexFetcher := httpfetch.New(httpfetch.Config{}, log)

	robotsCache, err := robots.NewCache(crawlFetcher, 128)
	if err != nil {
		store.Close()
		return nil, err
	}

	embedder := embeddings.New(embeddings.Config{
		BaseURL:   cfg.Ollama.BaseURL(),
		Model:     cfg.Ollama.Model,
		BatchSize: cfg.Ollama.BatchSize,
	}, log)

	chunkerCfg := chunker.Config{
		Target:                    cfg.Chunking.TargetChunkSize,
		Max:                       cfg.Chunking.MaxChunkSize,
		Min:                       cfg.Chunking.MinChunkSize,
		Overlap:                   cfg.Chunking.OverlapSize,
		PreserveCodeBlocks:        true,
		SentenceBoundarySplitting: true,
	}

	return &app{
		cfg:      cfg,
		store:    store,
		vectors:  vectors,
		fetcher:  crawlFetcher,
		embedder: embedder,
		robots:   robotsCache,
		crawler:  crawler.New(crawlFetcher, robotsCache, store, crawler.Config{}, log),
		queue:    queue.New(store, queue.Config{}),
		indexer: indexer.New(indexer.Config{
			LockPath:           filepath.Join(dataDir, ".indexer.lock"),
			Chunker:            chunkerCfg,
			EmbeddingBatchSize: cfg.Ollama.BatchSize,
		}, store, vectors, indexFetcher, embedder, log),
		validator: consistency.New(store, vectors, embedder, chunkerCfg, log),
		log:       log,
	}, nil
}

func (a *app) mcpServer() *mcpserver.Server {
	return mcpserver.New(a.store, a.vectors, a.embedder, "0.1.0", a.log)
}

func (a *app) Close() {
	a.store.Close()
}

// ExitCode maps a tagged error to the process exit code documented in §6.5.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case errs.Is(err, errs.KindUser):
		return 1
	case errs.Is(err, errs.KindLeaseDenied):
		return 3
	case errs.Is(err, errs.KindStore),
		errs.Is(err, errs.KindStoreCorrupt),
		errs.Is(err, errs.KindEmbeddingUnavailable):
		return 2
	default:
		return 1
	}
}

func userError(format string, args ...any) error {
	return errs.New(errs.KindUser, fmt.Sprintf(format, args...))
}
