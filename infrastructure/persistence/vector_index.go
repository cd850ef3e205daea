package persistence

import (
	"fmt"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/search"
)

// VectorIndex is an in-memory, append-only collection of records sharing one
// embedding dimension and one distance metric.
type VectorIndex struct {
	metric    search.Metric
	dimension int
	records   []meme.Record
	vectors   [][]float64
}

// NewVectorIndex creates an empty index. The dimension is fixed by the first
// appended record.
func NewVectorIndex(metric search.Metric) *VectorIndex {
	if metric == "" {
		metric = search.MetricCosine
	}
	return &VectorIndex{metric: metric}
}

// Metric returns the distance metric.
func (x *VectorIndex) Metric() search.Metric { return x.metric }

// Dimension returns the embedding dimension, or 0 for an empty index.
func (x *VectorIndex) Dimension() int { return x.dimension }

// Len returns the number of records.
func (x *VectorIndex) Len() int { return len(x.records) }

// Records returns the records in insertion order.
func (x *VectorIndex) Records() []meme.Record {
	out := make([]meme.Record, len(x.records))
	copy(out, x.records)
	return out
}

// Append adds records. Either all records are appended or none: a record
// whose dimension differs from the index fails the whole call with
// meme.ErrDimensionMismatch.
func (x *VectorIndex) Append(records ...meme.Record) error {
	dim := x.dimension
	for _, r := range records {
		if dim == 0 {
			dim = r.Dimension()
		}
		if r.Dimension() != dim {
			return fmt.Errorf("%w: record %s has %d dimensions, index has %d",
				meme.ErrDimensionMismatch, r.SourceID(), r.Dimension(), dim)
		}
	}

	x.dimension = dim
	for _, r := range records {
		x.records = append(x.records, r)
		x.vectors = append(x.vectors, r.Embedding())
	}
	return nil
}

// Search returns up to k records nearest to query, closest first. Ties keep
// insertion order. An empty index yields an empty slice.
func (x *VectorIndex) Search(query []float64, k int) ([]meme.Match, error) {
	if len(x.records) == 0 {
		return []meme.Match{}, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			meme.ErrDimensionMismatch, len(query), x.dimension)
	}

	neighbors := search.Nearest(x.metric, query, x.vectors, k)
	matches := make([]meme.Match, len(neighbors))
	for i, n := range neighbors {
		matches[i] = meme.NewMatch(x.records[n.Position()], n.Distance())
	}
	return matches, nil
}
