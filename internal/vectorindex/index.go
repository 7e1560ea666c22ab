// Package vectorindex stores (vector, reference) pairs and answers k-nearest-neighbour
// queries by squared Euclidean distance.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"document-qa/internal/models"
)

var (
	ErrLengthMismatch    = errors.New("vectors and refs length mismatch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index is implemented by every backend. Search results are ordered nearest first,
// ties going to the earlier inserted vector.
type Index interface {
	Add(ctx context.Context, vectors [][]float32, refs []string) error
	Search(ctx context.Context, query []float32, k int) ([]models.Hit, error)
	// Rebuild replaces the whole content. An empty input leaves an empty index.
	Rebuild(ctx context.Context, vectors [][]float32, refs []string) error
	Len(ctx context.Context) (int, error)
}

// checkBatch validates a batch against the expected dimension (0 means unset) and
// returns the batch dimension.
func checkBatch(vectors [][]float32, refs []string, dim int) (int, error) {
	if len(vectors) != len(refs) {
		return 0, fmt.Errorf("%w: %d vectors, %d refs", ErrLengthMismatch, len(vectors), len(refs))
	}
	for i, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return 0, fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}

// squaredL2 assumes equal lengths.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

type ranked struct {
	hit models.Hit
	seq int64
}

func sortRanked(r []ranked) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].hit.Distance != r[j].hit.Distance {
			return r[i].hit.Distance < r[j].hit.Distance
		}
		return r[i].seq < r[j].seq
	})
}

func hits(r []ranked, k int) []models.Hit {
	if k > len(r) {
		k = len(r)
	}
	out := make([]models.Hit, 0, k)
	for _, x := range r[:k] {
		out = append(out, x.hit)
	}
	return out
}
