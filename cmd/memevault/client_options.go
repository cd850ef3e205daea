package main

import (
	"fmt"
	"log/slog"

	"github.com/memevault/memevault"
	"github.com/memevault/memevault/internal/config"
)

// newClient builds a client from configuration. Callers append
// entrypoint-specific options such as WithStorageDir.
func newClient(cfg config.AppConfig, logger *slog.Logger, extra ...memevault.Option) (*memevault.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := append([]memevault.Option{
		memevault.FromConfig(cfg),
		memevault.WithLogger(logger),
	}, extra...)

	client, err := memevault.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create memevault client: %w", err)
	}
	return client, nil
}

func closeClient(client *memevault.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close memevault client", slog.Any("error", err))
	}
}
