// Package search provides distance metrics and nearest-neighbor ranking
// over in-memory vectors.
package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Metric identifies the distance function of a vector index.
type Metric string

// Metric values.
const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// ParseMetric parses a metric name. An empty name selects cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(MetricCosine):
		return MetricCosine, nil
	case string(MetricL2), "euclidean":
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical).
// Returns 0 if either vector has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// L2Distance computes the Euclidean distance between two vectors of equal length.
func L2Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distance returns the distance between a and b under m. Lower is closer.
func (m Metric) Distance(a, b []float64) float64 {
	if m == MetricL2 {
		return L2Distance(a, b)
	}
	return 1 - CosineSimilarity(a, b)
}

// Neighbor is a ranked position in the candidate list with its distance.
type Neighbor struct {
	position int
	distance float64
}

// Position returns the index of the candidate in the slice passed to Nearest.
func (n Neighbor) Position() int { return n.position }

// Distance returns the distance from the query.
func (n Neighbor) Distance() float64 { return n.distance }

// Nearest ranks candidates by distance from query and returns the closest k.
// Equal distances keep candidate order, so earlier insertions rank first.
// k is clamped to the number of candidates.
func Nearest(m Metric, query []float64, candidates [][]float64, k int) []Neighbor {
	if len(candidates) == 0 || k <= 0 {
		return []Neighbor{}
	}

	neighbors := make([]Neighbor, len(candidates))
	for i, c := range candidates {
		neighbors[i] = Neighbor{position: i, distance: m.Distance(query, c)}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].distance < neighbors[j].distance
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k]
}
