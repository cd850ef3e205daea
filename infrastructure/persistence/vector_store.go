package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/search"
)

// IndexFilename is the vector index's file name inside a data directory.
const IndexFilename = "meme_index.json"

const indexFormatVersion = 1

type indexFile struct {
	Version   int           `json:"version"`
	Metric    search.Metric `json:"metric"`
	Dimension int           `json:"dimension"`
	Records   []recordEntry `json:"records"`
}

type recordEntry struct {
	Source      string    `json:"source"`
	Description string    `json:"description"`
	Embedding   []float64 `json:"embedding"`
}

// VectorStore persists a VectorIndex as one JSON document. Saves rewrite the
// whole file through a temp file and rename, so concurrent readers never see
// a torn index.
type VectorStore struct {
	path   string
	metric search.Metric
	lock   *fileLock

	cacheMu   sync.RWMutex
	cached    *VectorIndex
	cachedMod time.Time
	cachedLen int64
}

// NewVectorStore creates a VectorStore at path. metric applies only when the
// index is created; an existing file keeps the metric it was built with.
func NewVectorStore(path string, metric search.Metric) *VectorStore {
	if metric == "" {
		metric = search.MetricCosine
	}
	return &VectorStore{path: path, metric: metric, lock: newFileLock(path)}
}

// Path returns the index file path.
func (s *VectorStore) Path() string { return s.path }

// Exists reports whether an index file has been written.
func (s *VectorStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the index from disk. A missing file yields an empty index.
func (s *VectorStore) Load(_ context.Context) (*VectorIndex, error) {
	idx, _, err := s.read()
	return idx, err
}

// Save writes idx to disk, replacing the previous contents.
func (s *VectorStore) Save(ctx context.Context, idx *VectorIndex) error {
	release, err := s.lock.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return s.write(idx)
}

// Update loads the index, applies fn and saves the result while holding the
// write lock. Nothing is written when fn returns an error.
func (s *VectorStore) Update(ctx context.Context, fn func(*VectorIndex) error) error {
	release, err := s.lock.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	idx, _, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(idx); err != nil {
		return err
	}
	return s.write(idx)
}

// Snapshot returns a read-only view of the last saved index without taking
// the write lock. The boolean is false when no index exists yet. The decoded
// index is reused while the file is unchanged; callers must not mutate it.
func (s *VectorStore) Snapshot(_ context.Context) (*VectorIndex, bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: stat index %s: %w", meme.ErrStorage, s.path, err)
	}

	s.cacheMu.RLock()
	if s.cached != nil && s.cachedMod.Equal(info.ModTime()) && s.cachedLen == info.Size() {
		idx := s.cached
		s.cacheMu.RUnlock()
		return idx, true, nil
	}
	s.cacheMu.RUnlock()

	idx, exists, err := s.read()
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}

	s.cacheMu.Lock()
	s.cached = idx
	s.cachedMod = info.ModTime()
	s.cachedLen = info.Size()
	s.cacheMu.Unlock()

	return idx, true, nil
}

func (s *VectorStore) read() (*VectorIndex, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewVectorIndex(s.metric), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: read index %s: %w", meme.ErrStorage, s.path, err)
	}

	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, false, fmt.Errorf("%w: decode index %s: %w", meme.ErrStorage, s.path, err)
	}

	metric, err := search.ParseMetric(string(file.Metric))
	if err != nil {
		return nil, false, fmt.Errorf("%w: index %s: %w", meme.ErrStorage, s.path, err)
	}

	idx := NewVectorIndex(metric)
	idx.dimension = file.Dimension
	records := make([]meme.Record, 0, len(file.Records))
	for _, e := range file.Records {
		r, err := meme.NewRecord(e.Source, e.Description, e.Embedding)
		if err != nil {
			return nil, false, fmt.Errorf("%w: index %s: %w", meme.ErrStorage, s.path, err)
		}
		records = append(records, r)
	}
	if err := idx.Append(records...); err != nil {
		return nil, false, fmt.Errorf("%w: index %s: %w", meme.ErrStorage, s.path, err)
	}
	return idx, true, nil
}

func (s *VectorStore) write(idx *VectorIndex) error {
	records := idx.Records()
	file := indexFile{
		Version:   indexFormatVersion,
		Metric:    idx.Metric(),
		Dimension: idx.Dimension(),
		Records:   make([]recordEntry, len(records)),
	}
	for i, r := range records {
		file.Records[i] = recordEntry{
			Source:      r.SourceID(),
			Description: r.Description(),
			Embedding:   r.Embedding(),
		}
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("%w: encode index: %w", meme.ErrStorage, err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: write index %s: %w", meme.ErrStorage, s.path, err)
	}

	s.cacheMu.Lock()
	s.cached = nil
	s.cacheMu.Unlock()
	return nil
}
