// Package vectorstore holds chunk embeddings and answers nearest-neighbor
// queries by cosine similarity. All implementations share the Store contract;
// the concrete backend is chosen once at startup.
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrZeroVector        = errors.New("zero-magnitude vector")
	ErrEmptyID           = errors.New("empty vector id")
)

// Metadata travels with each stored vector.
type Metadata struct {
	Source     string `json:"source"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// QueryResult is one search hit. Score is the cosine similarity to the query.
type QueryResult struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

type Store interface {
	// Upsert inserts or replaces the vector stored under id.
	Upsert(ctx context.Context, id string, vector []float32, metadata Metadata) error
	// Search returns up to k hits ordered by descending score. Ties keep
	// insertion order.
	Search(ctx context.Context, query []float32, k int) ([]QueryResult, error)
	// Delete removes id. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Dot assumes len(a) == len(b).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SortResults orders hits by descending score. The input order is kept for
// equal scores, so callers pass hits in insertion order.
func SortResults(results []QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// Truncate caps results at k. k <= 0 keeps nothing.
func Truncate(results []QueryResult, k int) []QueryResult {
	if k <= 0 {
		return []QueryResult{}
	}
	if len(results) > k {
		return results[:k]
	}
	return results
}

// SourcePruner is implemented by stores that can delete by metadata. It lets
// a fresh process drop chunks left over from an earlier run.
type SourcePruner interface {
	// PruneSource deletes the chunks of source whose ChunkIndex is at least fromIndex.
	PruneSource(ctx context.Context, source string, fromIndex int) error
}
