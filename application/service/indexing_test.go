package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/persistence"
	"github.com/memevault/memevault/infrastructure/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir       string
	captioner *stubCaptioner
	embedder  *stubEmbedder
	store     *persistence.VectorStore
	ledger    *persistence.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:       dir,
		captioner: &stubCaptioner{},
		embedder:  &stubEmbedder{},
		store:     persistence.NewVectorStore(filepath.Join(dir, persistence.IndexFilename), search.MetricCosine),
		ledger:    persistence.NewLedger(filepath.Join(dir, persistence.LedgerFilename)),
	}
}

func (f *fixture) indexer(opts ...IndexerOption) *Indexer {
	return NewIndexer(f.captioner, f.embedder, f.store, f.ledger, opts...)
}

// writeMeme creates an image file whose bytes are its caption.
func writeMeme(t *testing.T, dir, name, caption string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(caption), 0o644))
	return path
}

func ledgerIDs(t *testing.T, l *persistence.Ledger) []string {
	t.Helper()
	set, err := l.All(context.Background())
	require.NoError(t, err)
	return set.Slice()
}

func canonical(t *testing.T, path string) string {
	t.Helper()
	id, err := meme.LocalPath(path)
	require.NoError(t, err)
	return id
}

func TestIndexer_IndexFolder(t *testing.T) {
	f := newFixture(t)
	memes := filepath.Join(f.dir, "memes")
	a := writeMeme(t, memes, "a.png", "a surprised cat")
	b := writeMeme(t, memes, "sub/b.JPG", "a happy dog")
	writeMeme(t, memes, "notes.txt", "not a meme")

	summary, err := f.indexer().IndexFolder(context.Background(), memes, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Discovered())
	assert.Equal(t, 2, summary.Succeeded())
	assert.Zero(t, summary.Failed())

	want := []string{canonical(t, a), canonical(t, b)}
	sort.Strings(want)
	assert.Equal(t, want, ledgerIDs(t, f.ledger))

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, len(vocabulary)+1, idx.Dimension())
}

func TestIndexer_InvalidFolder(t *testing.T) {
	f := newFixture(t)
	_, err := f.indexer().IndexFolder(context.Background(), filepath.Join(f.dir, "missing"), nil)
	require.ErrorIs(t, err, meme.ErrInvalidFolder)
}

func TestIndexer_Idempotent(t *testing.T) {
	f := newFixture(t)
	memes := filepath.Join(f.dir, "memes")
	writeMeme(t, memes, "a.png", "a surprised cat")
	writeMeme(t, memes, "b.png", "a happy dog")
	ix := f.indexer()

	_, err := ix.IndexFolder(context.Background(), memes, nil)
	require.NoError(t, err)
	calls := f.captioner.Calls()
	info, err := os.Stat(f.store.Path())
	require.NoError(t, err)

	summary, err := ix.IndexFolder(context.Background(), memes, nil)
	require.NoError(t, err)

	assert.True(t, summary.NothingToDo())
	assert.Equal(t, 2, summary.Skipped())
	assert.Equal(t, "All memes are already indexed. Nothing to do.", summary.Report())
	assert.Equal(t, calls, f.captioner.Calls(), "no captioning on the second run")

	after, err := os.Stat(f.store.Path())
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime(), "index untouched")
}

func TestIndexer_PathSpellingsAreOneIdentifier(t *testing.T) {
	f := newFixture(t)
	writeMeme(t, f.dir, "x/a.png", "a frog")
	t.Chdir(f.dir)
	ix := f.indexer()

	first, err := ix.Index(context.Background(), []Item{FileItem("./x/a.png")}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, first.Succeeded())

	second, err := ix.Index(context.Background(), []Item{FileItem(filepath.Join(f.dir, "x", "..", "x", "a.png"))}, nil)
	require.NoError(t, err)
	assert.True(t, second.NothingToDo())
	assert.Equal(t, 1, second.Skipped())
	assert.Equal(t, 1, f.captioner.Calls())
}

func TestIndexer_DuplicatesInOneBatch(t *testing.T) {
	f := newFixture(t)
	path := writeMeme(t, f.dir, "a.png", "a cat")

	summary, err := f.indexer().Index(context.Background(), []Item{FileItem(path), FileItem(path)}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Discovered())
	assert.Equal(t, 1, summary.Succeeded())
	assert.Equal(t, 1, f.captioner.Calls())
}

func TestIndexer_PartialFailure(t *testing.T) {
	f := newFixture(t)
	a := writeMeme(t, f.dir, "a.png", "a cat")
	b := writeMeme(t, f.dir, "b.png", "broken")
	c := writeMeme(t, f.dir, "c.png", "a dog")
	f.captioner.failOn = map[string]error{"broken": errors.New("model refused")}

	summary, err := f.indexer().Index(context.Background(), []Item{FileItem(a), FileItem(b), FileItem(c)}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Discovered())
	assert.Equal(t, 2, summary.Succeeded())
	require.Equal(t, 1, summary.Failed())
	failure := summary.Failures()[0]
	assert.Equal(t, canonical(t, b), failure.SourceID())
	assert.ErrorIs(t, failure.Err(), meme.ErrCaption)

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.ElementsMatch(t, []string{canonical(t, a), canonical(t, c)}, ledgerIDs(t, f.ledger))

	assert.Contains(t, summary.Report(), "Could not process "+canonical(t, b))
	assert.Contains(t, summary.Report(), "Successfully indexed 2 new memes.")
}

func TestIndexer_NonFiniteEmbedding(t *testing.T) {
	f := newFixture(t)
	a := writeMeme(t, f.dir, "a.png", "a cat")
	b := writeMeme(t, f.dir, "b.png", "a dog")
	c := writeMeme(t, f.dir, "c.png", "a frog")
	f.embedder.nanWord = "frog"

	summary, err := f.indexer().Index(context.Background(), []Item{FileItem(a), FileItem(b), FileItem(c)}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded())
	require.Equal(t, 1, summary.Failed())
	assert.Equal(t, canonical(t, c), summary.Failures()[0].SourceID())
	assert.ErrorIs(t, summary.Failures()[0].Err(), meme.ErrEmbed)

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.ElementsMatch(t, []string{canonical(t, a), canonical(t, b)}, ledgerIDs(t, f.ledger))
}

func TestIndexer_IndexSaveFailure(t *testing.T) {
	f := newFixture(t)
	a := writeMeme(t, f.dir, "a.png", "a cat")
	b := writeMeme(t, f.dir, "b.png", "a dog")
	require.NoError(t, os.MkdirAll(f.store.Path(), 0o755))

	summary, err := f.indexer().Index(context.Background(), []Item{FileItem(a), FileItem(b)}, nil)
	require.ErrorIs(t, err, meme.ErrStorage)
	assert.NotErrorIs(t, err, ErrLedgerNotSaved)

	assert.Zero(t, summary.Succeeded())
	assert.Equal(t, 2, summary.Failed())
	for _, o := range summary.Failures() {
		assert.ErrorIs(t, o.Err(), meme.ErrStorage)
	}
	assert.Empty(t, ledgerIDs(t, f.ledger))
}

func TestIndexer_LedgerSaveFailure(t *testing.T) {
	f := newFixture(t)
	a := writeMeme(t, f.dir, "a.png", "a cat")
	ledgerPath := filepath.Join(f.dir, persistence.LedgerFilename)
	f.captioner.before = func() { _ = os.MkdirAll(ledgerPath, 0o755) }

	summary, err := f.indexer().Index(context.Background(), []Item{FileItem(a)}, nil)
	require.ErrorIs(t, err, meme.ErrStorage)
	require.ErrorIs(t, err, ErrLedgerNotSaved)
	assert.Equal(t, 1, summary.Failed())

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len(), "the record reached the index")

	// Once the ledger is writable again the next run records the identifier
	// without appending a second copy.
	f.captioner.before = nil
	require.NoError(t, os.Remove(ledgerPath))

	summary, err = f.indexer().Index(context.Background(), []Item{FileItem(a)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped())
	assert.Zero(t, summary.Succeeded())
	assert.Equal(t, []string{canonical(t, a)}, ledgerIDs(t, f.ledger))

	idx, err = f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestIndexer_ConcurrentRunsIndexOnce(t *testing.T) {
	const runs = 4
	f := newFixture(t)

	var arrived sync.WaitGroup
	arrived.Add(runs)
	f.captioner.before = func() {
		arrived.Done()
		arrived.Wait()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		skipped   int
	)
	for range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ix := f.indexer(WithCanonicalizer(meme.StorageName))
			summary, err := ix.Index(context.Background(), []Item{BytesItem("a.png", []byte("a cat"))}, nil)
			assert.NoError(t, err)

			mu.Lock()
			succeeded += summary.Succeeded()
			skipped += summary.Skipped()
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, runs-1, skipped)

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, []string{"a.png"}, ledgerIDs(t, f.ledger))
}

func TestIndexer_EmbedFailure(t *testing.T) {
	f := newFixture(t)
	a := writeMeme(t, f.dir, "a.png", "a cat")
	f.embedder.err = errors.New("quota exceeded")

	summary, err := f.indexer().Index(context.Background(), []Item{FileItem(a)}, nil)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Failed())
	assert.ErrorIs(t, summary.Failures()[0].Err(), meme.ErrEmbed)
	assert.False(t, f.store.Exists(), "nothing to write")
	assert.Empty(t, ledgerIDs(t, f.ledger))
}

func TestIndexer_UnreadableFile(t *testing.T) {
	f := newFixture(t)
	summary, err := f.indexer().Index(context.Background(), []Item{FileItem(filepath.Join(f.dir, "gone.png"))}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed())
	assert.Zero(t, f.captioner.Calls())
}

func TestIndexer_DimensionMismatch(t *testing.T) {
	f := newFixture(t)
	a := writeMeme(t, f.dir, "a.png", "a cat")
	b := writeMeme(t, f.dir, "b.png", "a dog")

	_, err := f.indexer().Index(context.Background(), []Item{FileItem(a)}, nil)
	require.NoError(t, err)

	f.embedder.dimension = 2
	summary, err := f.indexer().Index(context.Background(), []Item{FileItem(b)}, nil)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Failed())
	assert.ErrorIs(t, summary.Failures()[0].Err(), meme.ErrDimensionMismatch)
	assert.Equal(t, []string{canonical(t, a)}, ledgerIDs(t, f.ledger))

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestIndexer_ItemTimeout(t *testing.T) {
	f := newFixture(t)
	a := writeMeme(t, f.dir, "a.png", "a cat")
	f.captioner.block = true

	start := time.Now()
	summary, err := f.indexer(WithItemTimeout(50*time.Millisecond)).Index(context.Background(), []Item{FileItem(a)}, nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, summary.Failed())
	assert.ErrorIs(t, summary.Failures()[0].Err(), meme.ErrCaption)
	assert.ErrorIs(t, summary.Failures()[0].Err(), context.DeadlineExceeded)
}

func TestIndexer_BoundedConcurrencyAndProgress(t *testing.T) {
	f := newFixture(t)
	var items []Item
	for i := range 12 {
		items = append(items, FileItem(writeMeme(t, f.dir, string(rune('a'+i))+".png", "a cat")))
	}

	var (
		mu    sync.Mutex
		dones []int
	)
	progress := func(done, total int, _ string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 12, total)
		dones = append(dones, done)
	}

	summary, err := f.indexer(WithConcurrency(3)).Index(context.Background(), items, progress)
	require.NoError(t, err)

	assert.Equal(t, 12, summary.Succeeded())
	assert.LessOrEqual(t, f.captioner.maxSeen.Load(), int32(3))
	sort.Ints(dones)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, dones)
}

func TestIndexer_RateLimit(t *testing.T) {
	f := newFixture(t)
	var items []Item
	for i := range 3 {
		items = append(items, FileItem(writeMeme(t, f.dir, string(rune('a'+i))+".png", "a cat")))
	}

	start := time.Now()
	summary, err := f.indexer(WithRateLimit(20)).Index(context.Background(), items, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Succeeded())
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestIndexer_StorageNames(t *testing.T) {
	f := newFixture(t)
	ix := f.indexer(WithCanonicalizer(meme.StorageName))

	summary, err := ix.Index(context.Background(), []Item{
		BytesItem("1.png", []byte("a cat")),
		BytesItem("../escape.png", []byte("a dog")),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded())
	require.Equal(t, 1, summary.Failed())
	assert.ErrorIs(t, summary.Failures()[0].Err(), meme.ErrInvalidIdentifier)
	assert.Equal(t, []string{"1.png"}, ledgerIDs(t, f.ledger))
}

func TestIndexer_CancelledContext(t *testing.T) {
	f := newFixture(t)
	a := writeMeme(t, f.dir, "a.png", "a cat")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.indexer().Index(ctx, []Item{FileItem(a)}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Failed())
	assert.Zero(t, f.captioner.Calls())
}
