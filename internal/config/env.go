package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., CAPTION_ENDPOINT_API_KEY).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir holds the local index and ledger.
	// Env: DATA_DIR
	// Default: ~/.memevault
	DataDir string `envconfig:"DATA_DIR"`

	// StorageDir holds server uploads, their index and the upload catalog.
	// Env: STORAGE_DIR
	// Default: {data_dir}/memes
	StorageDir string `envconfig:"STORAGE_DIR"`

	// ModelDir is searched for a local embedding model.
	// Env: MODEL_DIR
	// Default: {data_dir}/models
	ModelDir string `envconfig:"MODEL_DIR"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of keys required for write requests.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// CORSOrigins is a comma-separated list of allowed origins.
	// Env: CORS_ORIGINS
	CORSOrigins string `envconfig:"CORS_ORIGINS"`

	// BasePath is the URL prefix of the HTTP API.
	// Env: BASE_PATH (default: /memeselector)
	BasePath string `envconfig:"BASE_PATH" default:"/memeselector"`

	// SearchLimit is the default number of search results.
	// Env: SEARCH_LIMIT (default: 9)
	SearchLimit int `envconfig:"SEARCH_LIMIT" default:"9"`

	// HTTPCacheDir caches embedding responses on disk when set.
	// Env: HTTP_CACHE_DIR
	HTTPCacheDir string `envconfig:"HTTP_CACHE_DIR"`

	// OpenRouterAPIKey is used when CAPTION_ENDPOINT_API_KEY is unset.
	// Env: OPENROUTER_API_KEY
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`

	// CaptionEndpoint configures the vision model.
	CaptionEndpoint CaptionEnv `envconfig:"CAPTION_ENDPOINT"`

	// EmbeddingEndpoint configures the remote embedding model.
	EmbeddingEndpoint EmbeddingEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// Indexing configures the indexing pipeline.
	Indexing IndexingEnv `envconfig:"INDEXING"`
}

// CaptionEnv holds environment configuration for the caption endpoint.
type CaptionEnv struct {
	// BaseURL overrides the OpenRouter API URL.
	// Env: CAPTION_ENDPOINT_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the vision model identifier.
	// Env: CAPTION_ENDPOINT_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the OpenRouter API key.
	// Env: CAPTION_ENDPOINT_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: CAPTION_ENDPOINT_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxTokens bounds the caption length.
	// Env: CAPTION_ENDPOINT_MAX_TOKENS (default: 200)
	MaxTokens int `envconfig:"MAX_TOKENS" default:"200"`

	// Temperature is the sampling temperature.
	// Env: CAPTION_ENDPOINT_TEMPERATURE
	Temperature float64 `envconfig:"TEMPERATURE"`

	// Title is sent as the X-Title attribution header.
	// Env: CAPTION_ENDPOINT_TITLE
	Title string `envconfig:"TITLE"`

	// Referer is sent as the HTTP-Referer attribution header.
	// Env: CAPTION_ENDPOINT_REFERER
	Referer string `envconfig:"REFERER"`
}

// EmbeddingEnv holds environment configuration for the embedding endpoint.
type EmbeddingEnv struct {
	// BaseURL is the OpenAI-compatible API URL.
	// Env: EMBEDDING_ENDPOINT_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the embedding model identifier.
	// Env: EMBEDDING_ENDPOINT_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: EMBEDDING_ENDPOINT_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: EMBEDDING_ENDPOINT_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: EMBEDDING_ENDPOINT_MAX_RETRIES (default: 3)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"3"`
}

// IndexingEnv holds environment configuration for the indexing pipeline.
type IndexingEnv struct {
	// Concurrency is the number of images processed at once.
	// Env: INDEXING_CONCURRENCY (default: 4)
	Concurrency int `envconfig:"CONCURRENCY" default:"4"`

	// ItemTimeout is the per-image timeout in seconds.
	// Env: INDEXING_ITEM_TIMEOUT (default: 60)
	ItemTimeout float64 `envconfig:"ITEM_TIMEOUT" default:"60"`

	// RatePerSecond limits caption requests. Zero disables the limit.
	// Env: INDEXING_RATE_PER_SECOND (default: 0)
	RatePerSecond float64 `envconfig:"RATE_PER_SECOND" default:"0"`

	// Metric is the distance metric of new indexes (cosine or l2).
	// Env: INDEXING_METRIC (default: cosine)
	Metric string `envconfig:"METRIC" default:"cosine"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "MEMEVAULT" would require MEMEVAULT_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.StorageDir != "" {
		cfg = applyOption(cfg, WithStorageDir(e.StorageDir))
	}
	if e.ModelDir != "" {
		cfg = applyOption(cfg, WithModelDir(e.ModelDir))
	}
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.APIKeys != "" {
		cfg = applyOption(cfg, WithAPIKeys(ParseAPIKeys(e.APIKeys)))
	}
	if e.CORSOrigins != "" {
		cfg = applyOption(cfg, WithCORSOrigins(ParseOrigins(e.CORSOrigins)))
	}
	cfg = applyOption(cfg, WithBasePath(e.BasePath))
	if e.SearchLimit > 0 {
		cfg = applyOption(cfg, WithSearchLimit(e.SearchLimit))
	}
	if e.HTTPCacheDir != "" {
		cfg = applyOption(cfg, WithHTTPCacheDir(e.HTTPCacheDir))
	}

	caption := e.CaptionEndpoint
	if caption.APIKey == "" {
		caption.APIKey = e.OpenRouterAPIKey
	}
	cfg = applyOption(cfg, WithCaptionEndpoint(caption.ToEndpoint()))

	if e.EmbeddingEndpoint.IsConfigured() {
		cfg = applyOption(cfg, WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))
	}

	cfg = applyOption(cfg, WithIndexingConfig(e.Indexing.ToIndexingConfig()))

	return cfg
}

// applyOption applies an option to the config.
func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// ToEndpoint converts CaptionEnv to Endpoint.
func (c CaptionEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithTimeout(seconds(c.Timeout)),
		WithMaxTokens(c.MaxTokens),
		WithTemperature(c.Temperature),
		WithMaxRetries(0),
	}
	if c.BaseURL != "" {
		opts = append(opts, WithBaseURL(c.BaseURL))
	}
	if c.Model != "" {
		opts = append(opts, WithModel(c.Model))
	}
	if c.APIKey != "" {
		opts = append(opts, WithAPIKey(c.APIKey))
	}
	if c.Title != "" {
		opts = append(opts, WithTitle(c.Title))
	}
	if c.Referer != "" {
		opts = append(opts, WithReferer(c.Referer))
	}
	return NewEndpointWithOptions(opts...)
}

// IsConfigured returns true if a remote embedding endpoint is addressed.
func (e EmbeddingEnv) IsConfigured() bool {
	return e.BaseURL != "" || e.APIKey != ""
}

// ToEndpoint converts EmbeddingEnv to Endpoint.
func (e EmbeddingEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithTimeout(seconds(e.Timeout)),
		WithMaxRetries(e.MaxRetries),
	}
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.Model != "" {
		opts = append(opts, WithModel(e.Model))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}
	return NewEndpointWithOptions(opts...)
}

// ToIndexingConfig converts IndexingEnv to IndexingConfig.
func (i IndexingEnv) ToIndexingConfig() IndexingConfig {
	return NewIndexingConfig().
		WithConcurrency(i.Concurrency).
		WithItemTimeout(seconds(i.ItemTimeout)).
		WithRatePerSecond(i.RatePerSecond).
		WithMetric(i.Metric)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
