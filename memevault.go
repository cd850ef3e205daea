// Package memevault indexes a collection of meme images by captioning them
// with a vision model, embedding the captions and searching them by meaning.
//
// Basic usage:
//
//	client, err := memevault.New(
//	    memevault.WithDataDir("~/.memevault"),
//	    memevault.WithOpenRouter(provider.OpenRouterConfig{APIKey: os.Getenv("OPENROUTER_API_KEY")}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Index a folder
//	summary, err := client.Indexer.IndexFolder(ctx, "./memes", nil)
//	fmt.Print(summary.Report())
//
//	// Search by meaning
//	result, err := client.Search.Search(ctx, "surprised cat", 0)
//	fmt.Println(result.Message())
package memevault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/memevault/memevault/application/service"
	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/filesystem"
	"github.com/memevault/memevault/infrastructure/persistence"
	"github.com/memevault/memevault/infrastructure/provider"
	"github.com/memevault/memevault/infrastructure/search"
	"github.com/memevault/memevault/internal/config"
	"github.com/memevault/memevault/internal/database"
)

// Client errors.
var (
	ErrClientClosed = errors.New("memevault: client is closed")
	ErrNoCaptioner  = fmt.Errorf("%w: no caption provider configured", meme.ErrConfiguration)
)

// Client is the main entry point for the memevault library.
//
// The local library lives in the data directory and is keyed by absolute
// file path. When a storage directory is configured the client also serves
// uploads, which are stored, indexed and searched separately and keyed by
// their generated filename.
type Client struct {
	// Indexer indexes images of the local library.
	Indexer *service.Indexer
	// Search searches the local library.
	Search *service.Searcher
	// Models captions images and embeds text without indexing anything.
	Models *service.Models
	// Uploads handles uploaded images. Nil without a storage directory.
	Uploads *service.Uploads
	// UploadSearch searches uploaded images. Nil without a storage directory.
	UploadSearch *service.Searcher

	captioner meme.Captioner
	embedder  meme.Embedder
	db        *database.Database
	hugot     *provider.HugotEmbedder
	closers   []io.Closer

	logger     *slog.Logger
	dataDir    string
	storageDir string
	closed     atomic.Bool
	mu         sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}

	logger := cfg.logger
	if logger == nil {
		logger = config.DefaultLogger()
	}

	if cfg.captioner == nil {
		return nil, ErrNoCaptioner
	}

	dataDir, err := config.PrepareDataDir(cfg.dataDir)
	if err != nil {
		return nil, err
	}

	metric, err := search.ParseMetric(cfg.indexing.Metric())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", meme.ErrConfiguration, err)
	}

	client := &Client{
		captioner:  cfg.captioner,
		closers:    cfg.closers,
		logger:     logger,
		dataDir:    dataDir,
		storageDir: cfg.storageDir,
	}

	embedder, err := client.buildEmbedder(cfg, dataDir)
	if err != nil {
		return nil, err
	}
	client.embedder = embedder

	indexerOpts := []service.IndexerOption{
		service.WithConcurrency(cfg.indexing.Concurrency()),
		service.WithItemTimeout(cfg.indexing.ItemTimeout()),
		service.WithRateLimit(cfg.indexing.RatePerSecond()),
		service.WithIndexerLogger(logger),
	}
	searcherOpts := []service.SearcherOption{
		service.WithDefaultTopK(cfg.searchLimit),
		service.WithSearcherLogger(logger),
	}

	libraryStore := persistence.NewVectorStore(filepath.Join(dataDir, persistence.IndexFilename), metric)
	libraryLedger := persistence.NewLedger(filepath.Join(dataDir, persistence.LedgerFilename))
	client.Indexer = service.NewIndexer(cfg.captioner, embedder, libraryStore, libraryLedger, indexerOpts...)
	client.Search = service.NewSearcher(embedder, libraryStore, searcherOpts...)
	client.Models = service.NewModels(cfg.captioner, embedder)

	if cfg.storageDir != "" {
		if err := client.openUploads(cfg, metric, indexerOpts, searcherOpts); err != nil {
			return nil, errors.Join(err, client.release())
		}
	}

	logger.Info("memevault client ready",
		slog.String("data_dir", dataDir),
		slog.String("storage_dir", cfg.storageDir),
		slog.String("metric", string(metric)),
	)
	return client, nil
}

// buildEmbedder picks the remote endpoint when configured and the local
// model otherwise.
func (c *Client) buildEmbedder(cfg *clientConfig, dataDir string) (meme.Embedder, error) {
	if cfg.embedder != nil {
		return cfg.embedder, nil
	}

	if cfg.openAI != nil {
		openAICfg := *cfg.openAI
		if cfg.httpCacheDir != "" {
			inner := openAICfg.Transport
			if inner == nil {
				inner = http.DefaultTransport
			}
			cache, err := provider.NewResponseCache(cfg.httpCacheDir, inner)
			if err != nil {
				return nil, err
			}
			openAICfg.Transport = cache
			c.logger.Info("caching embedding responses", slog.String("dir", cache.Dir()))
		}
		embedder := provider.NewOpenAIEmbedder(openAICfg)
		c.closers = append(c.closers, embedder)
		return embedder, nil
	}

	modelDir := cfg.modelDir
	if modelDir == "" {
		modelDir = filepath.Join(dataDir, config.DefaultModelSubdir)
	}
	hugot := provider.NewHugotEmbedder(modelDir)
	if !hugot.Available() {
		return nil, fmt.Errorf("%w: no embedding model found in %s; configure EMBEDDING_ENDPOINT_BASE_URL or add a model", meme.ErrConfiguration, modelDir)
	}
	c.hugot = hugot
	c.logger.Info("built-in embedding model enabled", slog.String("model_dir", modelDir))
	return hugot, nil
}

// openUploads wires the upload storage, its index and the catalog.
func (c *Client) openUploads(cfg *clientConfig, metric search.Metric, indexerOpts []service.IndexerOption, searcherOpts []service.SearcherOption) error {
	storage, err := filesystem.NewStorage(cfg.storageDir)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := database.NewDatabase(ctx, database.SQLiteURL(filepath.Join(cfg.storageDir, persistence.CatalogFilename)), c.logger)
	if err != nil {
		return fmt.Errorf("open upload catalog: %w", err)
	}
	c.db = &db

	catalog, err := persistence.NewCatalog(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate upload catalog: %w", err)
	}

	store := persistence.NewVectorStore(filepath.Join(cfg.storageDir, persistence.IndexFilename), metric)
	ledger := persistence.NewLedger(filepath.Join(cfg.storageDir, persistence.LedgerFilename))
	indexer := service.NewIndexer(c.captioner, c.embedder, store, ledger,
		append(indexerOpts, service.WithCanonicalizer(meme.StorageName))...)

	c.Uploads = service.NewUploads(indexer, storage, catalog, c.logger)
	c.UploadSearch = service.NewSearcher(c.embedder, store, searcherOpts...)
	return nil
}

// Close releases the embedding model, registered closers and the catalog.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.release(); err != nil {
		return err
	}
	c.logger.Info("memevault client closed")
	return nil
}

func (c *Client) release() error {
	if c.hugot != nil {
		if err := c.hugot.Close(); err != nil {
			c.logger.Error("failed to close embedding model", slog.Any("error", err))
		}
	}
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("close upload catalog: %w", err)
		}
	}
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// DataDir returns the directory holding the local library.
func (c *Client) DataDir() string {
	return c.dataDir
}

// StorageDir returns the upload directory, or "" when uploads are disabled.
func (c *Client) StorageDir() string {
	return c.storageDir
}

// Captioner returns the caption provider.
func (c *Client) Captioner() meme.Captioner {
	return c.captioner
}

// Embedder returns the embedding provider.
func (c *Client) Embedder() meme.Embedder {
	return c.embedder
}
