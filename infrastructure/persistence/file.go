// Package persistence provides the on-disk stores for the vector index, the
// indexed-path ledger and the upload catalog.
package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/memevault/memevault/domain/meme"
)

const lockRetryDelay = 25 * time.Millisecond

// fileLock serializes load-modify-save cycles on one file, both inside the
// process and across processes sharing the data directory.
type fileLock struct {
	mu    sync.Mutex
	flock *flock.Flock
	dir   string
}

func newFileLock(path string) *fileLock {
	return &fileLock{
		flock: flock.New(path + ".lock"),
		dir:   filepath.Dir(path),
	}
}

// acquire blocks until the lock is held or ctx is done. The returned func
// releases it.
func (l *fileLock) acquire(ctx context.Context) (func(), error) {
	l.mu.Lock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: create directory %s: %w", meme.ErrStorage, l.dir, err)
	}

	ok, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: lock %s: %w", meme.ErrStorage, l.flock.Path(), err)
	}
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: lock %s not acquired", meme.ErrStorage, l.flock.Path())
	}

	return func() {
		_ = l.flock.Unlock()
		l.mu.Unlock()
	}, nil
}

// writeFileAtomic replaces path with data. Readers see either the old or the
// new contents, never a partial write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
