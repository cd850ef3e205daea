// Package service provides the application services that orchestrate
// captioning, embedding, persistence and search.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/filesystem"
	"github.com/memevault/memevault/infrastructure/persistence"
	"github.com/memevault/memevault/internal/config"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Item is one image handed to the indexer.
type Item struct {
	id   string
	read func() ([]byte, error)
}

// FileItem reads the image at path when it is processed.
func FileItem(path string) Item {
	return Item{id: path, read: func() ([]byte, error) { return os.ReadFile(path) }}
}

// BytesItem wraps image bytes that are already in memory.
func BytesItem(id string, data []byte) Item {
	return Item{id: id, read: func() ([]byte, error) { return data, nil }}
}

// ID returns the identifier as supplied by the caller.
func (i Item) ID() string { return i.id }

// ProgressFunc is called after each image finishes, successfully or not.
type ProgressFunc func(done, total int, sourceID string)

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithConcurrency sets how many images are captioned at once.
func WithConcurrency(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// WithItemTimeout bounds captioning plus embedding of a single image.
func WithItemTimeout(d time.Duration) IndexerOption {
	return func(ix *Indexer) {
		if d > 0 {
			ix.itemTimeout = d
		}
	}
}

// WithRateLimit throttles caption requests to perSecond. Zero disables it.
func WithRateLimit(perSecond float64) IndexerOption {
	return func(ix *Indexer) {
		if perSecond > 0 {
			ix.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			ix.limiter = nil
		}
	}
}

// WithCanonicalizer sets how identifiers are normalized before ledger lookups.
func WithCanonicalizer(c meme.Canonicalizer) IndexerOption {
	return func(ix *Indexer) {
		if c != nil {
			ix.canonicalize = c
		}
	}
}

// WithIndexerLogger sets the logger.
func WithIndexerLogger(l *slog.Logger) IndexerOption {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// Indexer turns images into searchable records. A run canonicalizes and
// deduplicates identifiers, skips those already in the ledger, captions and
// embeds the rest in parallel, appends the successes to the vector index
// and finally records exactly those identifiers in the ledger.
type Indexer struct {
	captioner    meme.Captioner
	embedder     meme.Embedder
	store        *persistence.VectorStore
	ledger       *persistence.Ledger
	canonicalize meme.Canonicalizer
	concurrency  int
	itemTimeout  time.Duration
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// NewIndexer creates an Indexer. Identifiers are treated as local paths
// unless WithCanonicalizer says otherwise.
func NewIndexer(
	captioner meme.Captioner,
	embedder meme.Embedder,
	store *persistence.VectorStore,
	ledger *persistence.Ledger,
	opts ...IndexerOption,
) *Indexer {
	ix := &Indexer{
		captioner:    captioner,
		embedder:     embedder,
		store:        store,
		ledger:       ledger,
		canonicalize: meme.LocalPath,
		concurrency:  config.DefaultConcurrency,
		itemTimeout:  config.DefaultItemTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// IndexFolder scans folder for images and indexes the new ones.
func (ix *Indexer) IndexFolder(ctx context.Context, folder string, progress ProgressFunc) (meme.Summary, error) {
	paths, err := filesystem.ScanImages(folder)
	if err != nil {
		return meme.Summary{}, err
	}
	items := make([]Item, len(paths))
	for i, p := range paths {
		items[i] = FileItem(p)
	}
	return ix.Index(ctx, items, progress)
}

// pending is an image that passed canonicalization and dedup.
type pending struct {
	item      Item
	sourceID  string
	record    meme.Record
	outcome   meme.Outcome
	succeeded bool
	// duplicate is set when another run indexed the same identifier first.
	duplicate bool
}

// Index processes items. Per-image failures are reported in the summary and
// do not stop the run. The returned error is non-nil only when persisting
// the run failed or ctx was cancelled.
func (ix *Indexer) Index(ctx context.Context, items []Item, progress ProgressFunc) (meme.Summary, error) {
	indexed, err := ix.ledger.All(ctx)
	if err != nil {
		return meme.Summary{}, err
	}

	var (
		work     []*pending
		rejected []meme.Outcome
		skipped  int
		seen     = make(map[string]struct{}, len(items))
	)
	for _, item := range items {
		id, err := ix.canonicalize(item.ID())
		if err != nil {
			rejected = append(rejected, meme.NewOutcome(item.ID(), "", err))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if indexed.Contains(id) {
			skipped++
			continue
		}
		work = append(work, &pending{item: item, sourceID: id})
	}
	discovered := len(seen) + len(rejected)

	if len(work) == 0 {
		return meme.NewSummary(discovered, skipped, rejected), nil
	}

	ix.logger.Info("indexing memes", "new", len(work), "skipped", skipped)
	ix.process(ctx, work, progress)

	persistCtx := context.WithoutCancel(ctx)
	persistErr := ix.persist(persistCtx, work)

	outcomes := rejected
	for _, p := range work {
		if p.duplicate {
			skipped++
			continue
		}
		outcomes = append(outcomes, p.outcome)
	}
	summary := meme.NewSummary(discovered, skipped, outcomes)

	ix.logger.Info("indexing finished",
		"succeeded", summary.Succeeded(),
		"failed", summary.Failed(),
		"skipped", skipped,
	)

	if persistErr != nil {
		return summary, persistErr
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("indexing interrupted: %w", err)
	}
	return summary, nil
}

// process captions and embeds every pending item through a bounded pool.
func (ix *Indexer) process(ctx context.Context, work []*pending, progress ProgressFunc) {
	var (
		mu   sync.Mutex
		done int
	)
	g := new(errgroup.Group)
	g.SetLimit(ix.concurrency)

	for _, p := range work {
		g.Go(func() error {
			ix.processOne(ctx, p)

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if progress != nil {
				progress(n, len(work), p.sourceID)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (ix *Indexer) processOne(ctx context.Context, p *pending) {
	fail := func(err error) {
		p.outcome = meme.NewOutcome(p.sourceID, "", err)
		ix.logger.Warn("could not process meme", "source", p.sourceID, "error", err)
	}

	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}
	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			fail(err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, ix.itemTimeout)
	defer cancel()

	data, err := p.item.read()
	if err != nil {
		fail(fmt.Errorf("read image: %w", err))
		return
	}

	description, err := ix.captioner.Describe(ctx, data)
	if err != nil {
		fail(wrapKind(meme.ErrCaption, err))
		return
	}

	vector, err := ix.embedder.Embed(ctx, description)
	if err != nil {
		fail(wrapKind(meme.ErrEmbed, err))
		return
	}

	record, err := meme.NewRecord(p.sourceID, description, vector)
	if err != nil {
		fail(err)
		return
	}

	p.record = record
	p.succeeded = true
	p.outcome = meme.NewOutcome(p.sourceID, description, nil)
	ix.logger.Debug("generated description", "source", filepath.Base(p.sourceID))
}

// persist appends successful records to the index and then adds their
// identifiers to the ledger. A record whose dimension does not match the
// index is turned into a failure and never reaches the ledger. A record
// already present in the index, because a concurrent run got there first,
// is not appended again; its identifier still goes to the ledger.
func (ix *Indexer) persist(ctx context.Context, work []*pending) error {
	var candidates []*pending
	for _, p := range work {
		if p.succeeded {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	var appended, duplicates []*pending
	err := ix.store.Update(ctx, func(idx *persistence.VectorIndex) error {
		appended, duplicates = appended[:0], duplicates[:0]
		present := make(map[string]struct{}, idx.Len()+len(candidates))
		for _, r := range idx.Records() {
			present[r.SourceID()] = struct{}{}
		}

		for _, p := range candidates {
			if _, ok := present[p.sourceID]; ok {
				p.duplicate = true
				duplicates = append(duplicates, p)
				continue
			}
			if err := idx.Append(p.record); err != nil {
				if errors.Is(err, meme.ErrDimensionMismatch) {
					p.succeeded = false
					p.outcome = meme.NewOutcome(p.sourceID, "", err)
					continue
				}
				return err
			}
			present[p.sourceID] = struct{}{}
			appended = append(appended, p)
		}
		if len(appended) == 0 {
			return errNothingAppended
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNothingAppended) {
		for _, p := range duplicates {
			p.duplicate = false
		}
		ix.failAll(candidates, err)
		return fmt.Errorf("save vector index: %w", err)
	}

	if len(duplicates) > 0 {
		ix.logger.Info("memes already indexed by another run", "count", len(duplicates))
	}

	ids := make([]string, 0, len(appended)+len(duplicates))
	for _, p := range appended {
		ids = append(ids, p.sourceID)
	}
	for _, p := range duplicates {
		ids = append(ids, p.sourceID)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := ix.ledger.AddAll(ctx, ids); err != nil {
		ix.failAll(appended, err)
		return fmt.Errorf("%w: %w", ErrLedgerNotSaved, err)
	}
	return nil
}

func (ix *Indexer) failAll(items []*pending, err error) {
	for _, p := range items {
		if p.succeeded {
			p.succeeded = false
			p.outcome = meme.NewOutcome(p.sourceID, "", err)
		}
	}
}

var errNothingAppended = errors.New("no records appended")

// ErrLedgerNotSaved reports that new records reached the vector index but
// the ledger could not be updated. Those records stay searchable; a later
// run finds them in the index and records them in the ledger without
// appending them twice.
var ErrLedgerNotSaved = errors.New("save ledger")

// wrapKind makes sure err matches kind with errors.Is.
func wrapKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
