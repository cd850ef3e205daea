package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/memevault/memevault/domain/meme"
)

// LedgerFilename is the ledger's file name inside a data directory.
const LedgerFilename = "indexed_files.json"

// PathSet is an immutable set of canonical source identifiers.
type PathSet struct {
	ids map[string]struct{}
}

// NewPathSet creates a PathSet from ids.
func NewPathSet(ids ...string) PathSet {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return PathSet{ids: set}
}

// Contains reports whether id is in the set.
func (s PathSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of identifiers.
func (s PathSet) Len() int { return len(s.ids) }

// Slice returns the identifiers in sorted order.
func (s PathSet) Slice() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Ledger persists the set of identifiers already present in the vector index
// as a single JSON array. Every write replaces the whole file.
// Identifiers must be canonicalized by the caller.
type Ledger struct {
	path string
	lock *fileLock
}

// NewLedger creates a Ledger stored at path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path, lock: newFileLock(path)}
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// All loads the ledger. A missing file is an empty set.
func (l *Ledger) All(_ context.Context) (PathSet, error) {
	return l.read()
}

// Contains reports whether id has been recorded.
func (l *Ledger) Contains(ctx context.Context, id string) (bool, error) {
	set, err := l.All(ctx)
	if err != nil {
		return false, err
	}
	return set.Contains(id), nil
}

// AddAll records ids. It is a no-op for an empty slice.
func (l *Ledger) AddAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	release, err := l.lock.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	current, err := l.read()
	if err != nil {
		return err
	}

	merged := current.Slice()
	for _, id := range ids {
		if !current.Contains(id) {
			merged = append(merged, id)
		}
	}

	updated := NewPathSet(merged...)
	data, err := json.MarshalIndent(updated.Slice(), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode ledger: %w", meme.ErrStorage, err)
	}
	if err := writeFileAtomic(l.path, data); err != nil {
		return fmt.Errorf("%w: write ledger %s: %w", meme.ErrStorage, l.path, err)
	}
	return nil
}

func (l *Ledger) read() (PathSet, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewPathSet(), nil
	}
	if err != nil {
		return PathSet{}, fmt.Errorf("%w: read ledger %s: %w", meme.ErrStorage, l.path, err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return PathSet{}, fmt.Errorf("%w: decode ledger %s: %w", meme.ErrStorage, l.path, err)
	}
	return NewPathSet(ids...), nil
}
