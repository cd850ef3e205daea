package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memevault/memevault"
	"github.com/memevault/memevault/infrastructure/api"
	apimiddleware "github.com/memevault/memevault/infrastructure/api/middleware"
	"github.com/memevault/memevault/internal/config"
	"github.com/memevault/memevault/internal/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DATA_DIR                     Data directory (default: ~/.memevault)
  STORAGE_DIR                  Upload directory (default: {data_dir}/memes)
  MODEL_DIR                    Local embedding model directory (default: {data_dir}/models)
  BASE_PATH                    URL prefix of the API (default: /memeselector)
  SEARCH_LIMIT                 Default number of search results (default: 9)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  API_KEYS                     Comma-separated keys required for uploads
  CORS_ORIGINS                 Comma-separated allowed browser origins
  HTTP_CACHE_DIR               Cache embedding responses on disk
  OPENROUTER_API_KEY           OpenRouter API key

  CAPTION_ENDPOINT_*           Vision model configuration
    BASE_URL                   OpenRouter API URL override
    MODEL                      Model identifier
    API_KEY                    API key (falls back to OPENROUTER_API_KEY)
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_TOKENS                 Caption length bound (default: 200)
    TEMPERATURE                Sampling temperature

  EMBEDDING_ENDPOINT_*         Remote embedding configuration
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., text-embedding-3-small)
    API_KEY                    API key for authentication
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 3)

  INDEXING_*                   Indexing pipeline
    CONCURRENCY                Images processed at once (default: 4)
    ITEM_TIMEOUT               Per-image timeout in seconds (default: 60)
    RATE_PER_SECOND            Caption request rate limit (default: unlimited)
    METRIC                     Distance metric: cosine, l2 (default: cosine)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	// Flags take precedence over env vars.
	cfg = applyServeOverrides(cfg, host, port)
	addr := cfg.Addr()

	if err := cfg.EnsureStorageDir(); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	slogger := log.Configure(cfg).Slog()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting memevault", attrs...)

	client, err := newClient(cfg, slogger, memevault.WithStorageDir(cfg.StorageDir()))
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	router := newRouter(client, cfg, slogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := api.NewServer(addr, slogger)
	server.Router().Mount("/", router)

	go func() {
		<-sigChan
		slogger.Info("shutting down server")
		shutdownCtx, done := context.WithTimeout(ctx, 30*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	slogger.Info("starting server", slog.String("addr", addr), slog.String("base_path", cfg.BasePath()))
	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// newRouter mounts the API, health checks and documentation.
func newRouter(client *memevault.Client, cfg config.AppConfig, logger *slog.Logger) http.Handler {
	apiServer := api.NewAPIServer(client,
		api.WithBasePath(cfg.BasePath()),
		api.WithAPIKeys(cfg.APIKeys()),
		api.WithCORSOrigins(cfg.CORSOrigins()),
		api.WithVersion(version),
	)
	router := apiServer.Router()

	// Middleware must be added before MountRoutes.
	router.Use(apimiddleware.Logging(logger))

	apiServer.MountRoutes()

	router.Get("/health", healthHandler)
	router.Get("/healthz", healthHandler)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"memevault","version":"%s","docs":"/docs"}`, version)
	})

	docsRouter := apiServer.DocsRouter("/docs/openapi.json")
	router.Mount("/docs", docsRouter.Routes())

	return router
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
