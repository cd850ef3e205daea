// Package database provides the SQLite connection used by the upload catalog.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrUnsupportedDriver indicates the database URL uses an unsupported driver.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Database wraps a GORM connection with lifecycle management.
type Database struct {
	db *gorm.DB
}

// NewDatabase opens a database from a connection URL of the form
// sqlite:///path/to/file.db. Queries are logged through logger at debug level.
func NewDatabase(ctx context.Context, url string, logger *slog.Logger) (Database, error) {
	path, err := sqlitePath(url)
	if err != nil {
		return Database{}, fmt.Errorf("parse database url: %w", err)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Database{}, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newSlogGormLogger(logger),
	})
	if err != nil {
		return Database{}, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return Database{}, fmt.Errorf("get underlying db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return Database{}, fmt.Errorf("ping database: %w", err)
	}

	// SQLite allows one writer at a time.
	sqlDB.SetMaxOpenConns(1)

	return Database{db: db}, nil
}

// SQLiteURL builds a connection URL for the database file at path.
func SQLiteURL(path string) string {
	return "sqlite:///" + path
}

// Session returns a GORM session with the given context.
func (d Database) Session(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

// Close closes the database connection.
func (d Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}
	return sqlDB.Close()
}

func sqlitePath(url string) (string, error) {
	if !strings.HasPrefix(url, "sqlite:///") {
		return "", ErrUnsupportedDriver
	}
	path := strings.TrimPrefix(url, "sqlite:///")
	if path == "" {
		return "", fmt.Errorf("empty sqlite path")
	}
	return path, nil
}
