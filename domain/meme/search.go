package meme

import (
	"fmt"
	"strings"
)

// DefaultTopK is the number of results returned when the caller does not ask
// for a specific count.
const DefaultTopK = 9

// EmptyQueryMessage is shown when a search is submitted without text.
const EmptyQueryMessage = "Please enter a search query."

// SearchStatus distinguishes an empty result from a missing index.
type SearchStatus string

// SearchStatus values.
const (
	StatusOK               SearchStatus = "ok"
	StatusNoMatches        SearchStatus = "no_matches"
	StatusIndexUnavailable SearchStatus = "index_unavailable"
)

// SearchResult is the outcome of a query against the vector index.
type SearchResult struct {
	query   string
	status  SearchStatus
	matches []Match
}

// NewSearchResult creates a SearchResult. The status is derived from the matches.
func NewSearchResult(query string, matches []Match) SearchResult {
	status := StatusOK
	if len(matches) == 0 {
		status = StatusNoMatches
	}
	out := make([]Match, len(matches))
	copy(out, matches)
	return SearchResult{query: query, status: status, matches: out}
}

// UnavailableResult is returned when no index has been built yet.
func UnavailableResult(query string) SearchResult {
	return SearchResult{query: query, status: StatusIndexUnavailable, matches: []Match{}}
}

// Query returns the query text.
func (r SearchResult) Query() string { return r.query }

// Status returns the result status.
func (r SearchResult) Status() SearchStatus { return r.status }

// Matches returns the hits, nearest first.
func (r SearchResult) Matches() []Match {
	out := make([]Match, len(r.matches))
	copy(out, r.matches)
	return out
}

// SourceIDs returns the matched identifiers in rank order.
func (r SearchResult) SourceIDs() []string {
	ids := make([]string, len(r.matches))
	for i, m := range r.matches {
		ids[i] = m.SourceID()
	}
	return ids
}

// Err returns ErrIndexUnavailable for an unavailable result, otherwise nil.
func (r SearchResult) Err() error {
	if r.status == StatusIndexUnavailable {
		return ErrIndexUnavailable
	}
	return nil
}

// Message renders the result as the status text shown to users.
func (r SearchResult) Message() string {
	switch r.status {
	case StatusIndexUnavailable:
		return "Database not found. Please index your memes first."
	case StatusNoMatches:
		return "No matching memes found."
	default:
		return fmt.Sprintf("Found %d results:\n%s", len(r.matches), strings.Join(r.SourceIDs(), "\n"))
	}
}
