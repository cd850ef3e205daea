package memevault

import (
	"io"
	"log/slog"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/provider"
	"github.com/memevault/memevault/internal/config"
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	dataDir      string
	storageDir   string
	modelDir     string
	httpCacheDir string
	captioner    meme.Captioner
	embedder     meme.Embedder
	openAI       *provider.OpenAIConfig
	indexing     config.IndexingConfig
	searchLimit  int
	logger       *slog.Logger
	closers      []io.Closer
	err          error
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		dataDir:     config.DefaultDataDir(),
		indexing:    config.NewIndexingConfig(),
		searchLimit: config.DefaultSearchLimit,
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// FromConfig applies everything an AppConfig describes: directories,
// the caption and embedding endpoints, indexing and search settings.
// Uploads are not enabled; add WithStorageDir for a server.
func FromConfig(app config.AppConfig) Option {
	return func(c *clientConfig) {
		c.dataDir = app.DataDir()
		c.modelDir = app.ModelDir()
		c.httpCacheDir = app.HTTPCacheDir()
		c.indexing = app.Indexing()
		c.searchLimit = app.SearchLimit()

		if e := app.CaptionEndpoint(); e != nil && c.captioner == nil {
			captioner, err := provider.NewOpenRouterCaptioner(provider.OpenRouterConfig{
				APIKey:      e.APIKey(),
				BaseURL:     e.BaseURL(),
				Model:       e.Model(),
				MaxTokens:   e.MaxTokens(),
				Temperature: float32(e.Temperature()),
				Timeout:     e.Timeout(),
				Title:       e.Title(),
				Referer:     e.Referer(),
			})
			if err != nil {
				c.err = err
				return
			}
			c.captioner = captioner
		}

		if e := app.EmbeddingEndpoint(); e != nil {
			c.openAI = &provider.OpenAIConfig{
				APIKey:        e.APIKey(),
				BaseURL:       e.BaseURL(),
				Model:         e.Model(),
				Timeout:       e.Timeout(),
				MaxRetries:    e.MaxRetries(),
				InitialDelay:  e.InitialDelay(),
				BackoffFactor: e.BackoffFactor(),
			}
		}
	}
}

// WithDataDir sets the directory holding the local library index and ledger.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithStorageDir enables uploads and stores them, their index and the
// upload catalog in dir.
func WithStorageDir(dir string) Option {
	return func(c *clientConfig) {
		c.storageDir = dir
	}
}

// WithModelDir sets the directory searched for a local embedding model.
// Defaults to {dataDir}/models if not specified.
func WithModelDir(dir string) Option {
	return func(c *clientConfig) {
		c.modelDir = dir
	}
}

// WithHTTPCacheDir caches remote embedding responses on disk.
func WithHTTPCacheDir(dir string) Option {
	return func(c *clientConfig) {
		c.httpCacheDir = dir
	}
}

// WithOpenRouter captions images with a vision model on OpenRouter.
func WithOpenRouter(cfg provider.OpenRouterConfig) Option {
	return func(c *clientConfig) {
		captioner, err := provider.NewOpenRouterCaptioner(cfg)
		if err != nil {
			c.err = err
			return
		}
		c.captioner = captioner
	}
}

// WithCaptioner sets a custom caption provider.
func WithCaptioner(p meme.Captioner) Option {
	return func(c *clientConfig) {
		c.captioner = p
	}
}

// WithOpenAIEmbeddings embeds captions through an OpenAI-compatible endpoint.
func WithOpenAIEmbeddings(cfg provider.OpenAIConfig) Option {
	return func(c *clientConfig) {
		c.openAI = &cfg
	}
}

// WithEmbedder sets a custom embedding provider.
func WithEmbedder(p meme.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = p
	}
}

// WithIndexing sets the indexing pipeline configuration.
func WithIndexing(cfg config.IndexingConfig) Option {
	return func(c *clientConfig) {
		c.indexing = cfg
	}
}

// WithSearchLimit sets the default number of search results.
// Values <= 0 are ignored.
func WithSearchLimit(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(c io.Closer) Option {
	return func(cfg *clientConfig) {
		cfg.closers = append(cfg.closers, c)
	}
}
