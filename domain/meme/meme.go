// Package meme holds the core types for indexing and searching images by
// their generated descriptions.
package meme

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Captioner turns raw image bytes into a natural-language description.
type Captioner interface {
	Describe(ctx context.Context, image []byte) (string, error)
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Record is one indexed image: its identifier, description and embedding.
// Records are immutable once created.
type Record struct {
	sourceID    string
	description string
	embedding   []float64
}

// NewRecord creates a Record. The embedding is copied.
func NewRecord(sourceID, description string, embedding []float64) (Record, error) {
	if strings.TrimSpace(sourceID) == "" {
		return Record{}, fmt.Errorf("%w: empty source identifier", ErrInvalidIdentifier)
	}
	if len(embedding) == 0 {
		return Record{}, fmt.Errorf("%w: empty embedding for %s", ErrEmbed, sourceID)
	}
	for _, v := range embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Record{}, fmt.Errorf("%w: non-finite value in embedding for %s", ErrEmbed, sourceID)
		}
	}
	vec := make([]float64, len(embedding))
	copy(vec, embedding)
	return Record{
		sourceID:    sourceID,
		description: description,
		embedding:   vec,
	}, nil
}

// SourceID returns the canonical identifier of the image.
func (r Record) SourceID() string { return r.sourceID }

// Description returns the generated caption.
func (r Record) Description() string { return r.description }

// Embedding returns a copy of the embedding vector.
func (r Record) Embedding() []float64 {
	vec := make([]float64, len(r.embedding))
	copy(vec, r.embedding)
	return vec
}

// Dimension returns the length of the embedding.
func (r Record) Dimension() int { return len(r.embedding) }

// Match is a search hit with its distance from the query vector.
type Match struct {
	record   Record
	distance float64
}

// NewMatch creates a Match.
func NewMatch(record Record, distance float64) Match {
	return Match{record: record, distance: distance}
}

// Record returns the matched record.
func (m Match) Record() Record { return m.record }

// SourceID returns the matched record's identifier.
func (m Match) SourceID() string { return m.record.sourceID }

// Distance returns the distance from the query. Lower is closer.
func (m Match) Distance() float64 { return m.distance }
