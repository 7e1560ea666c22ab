package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"document-qa/internal/models"
)

// Memory is a flat brute-force index kept in process memory.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	refs    []string
}

var _ Index = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Add(_ context.Context, vectors [][]float32, refs []string) error {
	if len(vectors) == 0 && len(refs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dim, err := checkBatch(vectors, refs, m.dim)
	if err != nil {
		return err
	}
	m.dim = dim
	m.vectors = append(m.vectors, copyVectors(vectors)...)
	m.refs = append(m.refs, refs...)
	return nil
}

// Search panics when query does not match the dimension of the stored vectors.
func (m *Memory) Search(_ context.Context, query []float32, k int) ([]models.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.vectors) == 0 || k <= 0 {
		return []models.Hit{}, nil
	}
	if len(query) != m.dim {
		panic(fmt.Sprintf("vectorindex: query has %d dimensions, index has %d", len(query), m.dim))
	}

	r := make([]ranked, len(m.vectors))
	for i, v := range m.vectors {
		r[i] = ranked{hit: models.Hit{Ref: m.refs[i], Distance: squaredL2(v, query)}, seq: int64(i)}
	}
	sortRanked(r)
	return hits(r, k), nil
}

func (m *Memory) Rebuild(_ context.Context, vectors [][]float32, refs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dim, err := checkBatch(vectors, refs, m.dim)
	if err != nil {
		return err
	}
	if len(vectors) > 0 {
		m.dim = dim
	}
	m.vectors = copyVectors(vectors)
	m.refs = append([]string(nil), refs...)
	return nil
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors), nil
}

func copyVectors(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = append([]float32(nil), v...)
	}
	return out
}
