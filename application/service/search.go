package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/persistence"
)

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithDefaultTopK sets the result count used when a call asks for none.
func WithDefaultTopK(k int) SearcherOption {
	return func(s *Searcher) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithSearcherLogger sets the logger.
func WithSearcherLogger(l *slog.Logger) SearcherOption {
	return func(s *Searcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// Searcher answers natural-language queries against the vector index.
// It never takes the index write lock.
type Searcher struct {
	embedder meme.Embedder
	store    *persistence.VectorStore
	topK     int
	logger   *slog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(embedder meme.Embedder, store *persistence.VectorStore, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		embedder: embedder,
		store:    store,
		topK:     meme.DefaultTopK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultTopK returns the result count used when a call asks for none.
func (s *Searcher) DefaultTopK() int { return s.topK }

// Search returns up to topK identifiers nearest to query. A non-positive
// topK means the default. A blank query fails with ErrInvalidQuery before
// anything is embedded. A missing index yields an index_unavailable result
// rather than an error.
func (s *Searcher) Search(ctx context.Context, query string, topK int) (meme.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return meme.SearchResult{}, fmt.Errorf("%w: query cannot be empty", meme.ErrInvalidQuery)
	}
	if topK <= 0 {
		topK = s.topK
	}

	idx, exists, err := s.store.Snapshot(ctx)
	if err != nil {
		return meme.SearchResult{}, err
	}
	if !exists {
		s.logger.Debug("search before indexing", "query", query)
		return meme.UnavailableResult(query), nil
	}
	if idx.Len() == 0 {
		return meme.NewSearchResult(query, nil), nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return meme.SearchResult{}, wrapKind(meme.ErrEmbed, err)
	}

	matches, err := idx.Search(vector, topK)
	if err != nil {
		return meme.SearchResult{}, err
	}

	s.logger.Debug("search", "query", query, "top_k", topK, "matches", len(matches))
	return meme.NewSearchResult(query, matches), nil
}
