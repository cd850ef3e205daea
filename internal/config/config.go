// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 8080
	DefaultLogLevel           = "INFO"
	DefaultSearchLimit        = 9
	DefaultBasePath           = "/memeselector"
	DefaultStorageSubdir      = "memes"
	DefaultModelSubdir        = "models"
	DefaultHTTPCacheSubdir    = "http_cache"
	DefaultCaptionTimeout     = 60 * time.Second
	DefaultCaptionMaxTokens   = 200
	DefaultEndpointTimeout    = 60 * time.Second
	DefaultEndpointMaxRetries = 3
	DefaultInitialDelay       = 2 * time.Second
	DefaultBackoffFactor      = 2.0
	DefaultConcurrency        = 4
	DefaultItemTimeout        = 60 * time.Second
	DefaultMetric             = "cosine"
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// Endpoint configures a remote model endpoint.
type Endpoint struct {
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	maxTokens     int
	temperature   float64
	title         string
	referer       string
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:       DefaultEndpointTimeout,
		maxRetries:    DefaultEndpointMaxRetries,
		initialDelay:  DefaultInitialDelay,
		backoffFactor: DefaultBackoffFactor,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// MaxTokens returns the maximum output token count. Zero means the provider default.
func (e Endpoint) MaxTokens() int { return e.maxTokens }

// Temperature returns the sampling temperature.
func (e Endpoint) Temperature() float64 { return e.temperature }

// Title returns the attribution title sent with requests.
func (e Endpoint) Title() string { return e.title }

// Referer returns the attribution referer sent with requests.
func (e Endpoint) Referer() string { return e.referer }

// IsConfigured returns true if the endpoint has an API key or a base URL.
func (e Endpoint) IsConfigured() bool {
	return e.apiKey != "" || e.baseURL != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// WithMaxTokens sets the maximum output token count.
func WithMaxTokens(n int) EndpointOption {
	return func(e *Endpoint) { e.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) EndpointOption {
	return func(e *Endpoint) { e.temperature = t }
}

// WithTitle sets the attribution title.
func WithTitle(title string) EndpointOption {
	return func(e *Endpoint) { e.title = title }
}

// WithReferer sets the attribution referer.
func WithReferer(referer string) EndpointOption {
	return func(e *Endpoint) { e.referer = referer }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// IndexingConfig configures the indexing pipeline.
type IndexingConfig struct {
	concurrency   int
	itemTimeout   time.Duration
	ratePerSecond float64
	metric        string
}

// NewIndexingConfig creates a new IndexingConfig with defaults.
func NewIndexingConfig() IndexingConfig {
	return IndexingConfig{
		concurrency: DefaultConcurrency,
		itemTimeout: DefaultItemTimeout,
		metric:      DefaultMetric,
	}
}

// Concurrency returns the number of images processed at once.
func (i IndexingConfig) Concurrency() int { return i.concurrency }

// ItemTimeout bounds captioning plus embedding of one image.
func (i IndexingConfig) ItemTimeout() time.Duration { return i.itemTimeout }

// RatePerSecond returns the caption request rate limit. Zero means unlimited.
func (i IndexingConfig) RatePerSecond() float64 { return i.ratePerSecond }

// Metric returns the distance metric used for new indexes.
func (i IndexingConfig) Metric() string { return i.metric }

// WithConcurrency returns a new config with the specified concurrency.
func (i IndexingConfig) WithConcurrency(n int) IndexingConfig {
	if n > 0 {
		i.concurrency = n
	}
	return i
}

// WithItemTimeout returns a new config with the specified per-item timeout.
func (i IndexingConfig) WithItemTimeout(d time.Duration) IndexingConfig {
	if d > 0 {
		i.itemTimeout = d
	}
	return i
}

// WithRatePerSecond returns a new config with the specified rate limit.
func (i IndexingConfig) WithRatePerSecond(r float64) IndexingConfig {
	if r >= 0 {
		i.ratePerSecond = r
	}
	return i
}

// WithMetric returns a new config with the specified metric.
func (i IndexingConfig) WithMetric(m string) IndexingConfig {
	if m != "" {
		i.metric = strings.ToLower(m)
	}
	return i
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host              string
	port              int
	dataDir           string
	storageDir        string
	modelDir          string
	httpCacheDir      string
	logLevel          string
	logFormat         LogFormat
	apiKeys           []string
	corsOrigins       []string
	basePath          string
	searchLimit       int
	captionEndpoint   *Endpoint
	embeddingEndpoint *Endpoint
	indexing          IndexingConfig
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memevault"
	}
	return filepath.Join(home, ".memevault")
}

// DefaultLogger returns the default slog logger for library consumers.
func DefaultLogger() *slog.Logger {
	return slog.Default()
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		host:        DefaultHost,
		port:        DefaultPort,
		dataDir:     DefaultDataDir(),
		logLevel:    DefaultLogLevel,
		logFormat:   LogFormatPretty,
		apiKeys:     []string{},
		corsOrigins: []string{},
		basePath:    DefaultBasePath,
		searchLimit: DefaultSearchLimit,
		indexing:    NewIndexingConfig(),
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the directory holding the local index and ledger.
func (c AppConfig) DataDir() string { return c.dataDir }

// StorageDir returns the directory holding server uploads and their index.
// Defaults to a subdirectory of the data directory.
func (c AppConfig) StorageDir() string {
	if c.storageDir != "" {
		return c.storageDir
	}
	return filepath.Join(c.dataDir, DefaultStorageSubdir)
}

// ModelDir returns the directory searched for a local embedding model.
func (c AppConfig) ModelDir() string {
	if c.modelDir != "" {
		return c.modelDir
	}
	return filepath.Join(c.dataDir, DefaultModelSubdir)
}

// HTTPCacheDir returns the embedding response cache directory. Empty disables caching.
func (c AppConfig) HTTPCacheDir() string { return c.httpCacheDir }

// CatalogURL returns the database URL of the upload catalog.
func (c AppConfig) CatalogURL() string {
	return "sqlite:///" + filepath.Join(c.StorageDir(), "uploads.db")
}

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the configured API keys.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// CORSOrigins returns the allowed CORS origins. Empty allows none.
func (c AppConfig) CORSOrigins() []string {
	origins := make([]string, len(c.corsOrigins))
	copy(origins, c.corsOrigins)
	return origins
}

// BasePath returns the URL prefix of the HTTP API.
func (c AppConfig) BasePath() string { return c.basePath }

// SearchLimit returns the default number of search results.
func (c AppConfig) SearchLimit() int { return c.searchLimit }

// CaptionEndpoint returns the caption endpoint config.
func (c AppConfig) CaptionEndpoint() *Endpoint { return c.captionEndpoint }

// EmbeddingEndpoint returns the remote embedding endpoint config, or nil
// when embeddings are computed locally.
func (c AppConfig) EmbeddingEndpoint() *Endpoint { return c.embeddingEndpoint }

// Indexing returns the indexing pipeline config.
func (c AppConfig) Indexing() IndexingConfig { return c.indexing }

// Validate reports configuration that makes the application unusable.
func (c AppConfig) Validate() error {
	if c.captionEndpoint == nil || c.captionEndpoint.APIKey() == "" {
		return fmt.Errorf("caption API key is not set: set CAPTION_ENDPOINT_API_KEY or OPENROUTER_API_KEY")
	}
	switch c.indexing.Metric() {
	case "cosine", "l2", "euclidean":
	default:
		return fmt.Errorf("unknown distance metric %q", c.indexing.Metric())
	}
	return nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// EnsureStorageDir creates the storage directory if it doesn't exist.
func (c AppConfig) EnsureStorageDir() error {
	return os.MkdirAll(c.StorageDir(), 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.dataDir = dir }
}

// WithStorageDir sets the upload storage directory.
func WithStorageDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.storageDir = dir }
}

// WithModelDir sets the local model directory.
func WithModelDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.modelDir = dir }
}

// WithHTTPCacheDir sets the embedding response cache directory.
func WithHTTPCacheDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.httpCacheDir = dir }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsOrigins = make([]string, len(origins))
		copy(c.corsOrigins, origins)
	}
}

// WithBasePath sets the URL prefix of the HTTP API.
func WithBasePath(path string) AppConfigOption {
	return func(c *AppConfig) { c.basePath = normalizeBasePath(path) }
}

// WithSearchLimit sets the default number of search results.
func WithSearchLimit(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// WithCaptionEndpoint sets the caption endpoint.
func WithCaptionEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.captionEndpoint = &e }
}

// WithEmbeddingEndpoint sets the remote embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = &e }
}

// WithIndexingConfig sets the indexing pipeline config.
func WithIndexingConfig(i IndexingConfig) AppConfigOption {
	return func(c *AppConfig) { c.indexing = i }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// API keys are reported as counts.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("storage_dir", c.StorageDir()),
		slog.String("log_level", c.logLevel),
		slog.String("base_path", c.basePath),
		slog.String("caption_model", c.endpointModel(c.captionEndpoint)),
		slog.String("embedding_base_url", c.endpointBaseURL(c.embeddingEndpoint)),
		slog.String("embedding_model", c.endpointModel(c.embeddingEndpoint)),
		slog.String("model_dir", c.ModelDir()),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.Int("search_limit", c.searchLimit),
		slog.Int("concurrency", c.indexing.Concurrency()),
		slog.Duration("item_timeout", c.indexing.ItemTimeout()),
		slog.String("metric", c.indexing.Metric()),
	}
}

func (c AppConfig) endpointBaseURL(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	if e.BaseURL() == "" {
		return "(default)"
	}
	return e.BaseURL()
}

func (c AppConfig) endpointModel(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	if e.Model() == "" {
		return "(default)"
	}
	return e.Model()
}

// ParseAPIKeys parses a comma-separated string of API keys.
func ParseAPIKeys(s string) []string {
	return splitList(s)
}

// ParseOrigins parses a comma-separated string of CORS origins.
func ParseOrigins(s string) []string {
	return splitList(s)
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// normalizeBasePath returns path with one leading slash and no trailing
// slash. The root path becomes empty.
func normalizeBasePath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}
