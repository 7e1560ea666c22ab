package embedding

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-qa/internal/config"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	h := NewHashingEmbedder(64)

	a, err := h.EmbedQuery(ctx, "The capital of France is Paris.")
	require.NoError(t, err)
	b, err := h.EmbedQuery(ctx, "The capital of France is Paris.")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestHashingEmbedder_EmptyTextIsNotZero(t *testing.T) {
	v, err := NewHashingEmbedder(32).EmbedQuery(context.Background(), "")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(v), 1e-5)
}

func TestHashingEmbedder_SimilarTextsAreCloser(t *testing.T) {
	ctx := context.Background()
	h := NewHashingEmbedder(256)

	vs, err := h.EmbedDocuments(ctx, []string{
		"The capital of France is Paris.",
		"Quarterly revenue grew by ten percent.",
	})
	require.NoError(t, err)
	q, err := h.EmbedQuery(ctx, "What is the capital of France?")
	require.NoError(t, err)

	assert.Greater(t, dot(q, vs[0]), dot(q, vs[1]))
}

func TestHashingEmbedder_DefaultDimension(t *testing.T) {
	assert.Equal(t, defaultHashingDimension, NewHashingEmbedder(0).Dimension())
}

type stubEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors[:len(texts)], nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	v := s.vectors[s.calls%len(s.vectors)]
	s.calls++
	return v, nil
}

func TestWithDimensionCheck(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{vectors: [][]float32{{1, 0}, {1, 0, 0}}}
	e := WithDimensionCheck(stub)

	_, err := e.EmbedQuery(ctx, "first")
	require.NoError(t, err)
	_, err = e.EmbedQuery(ctx, "second")
	assert.ErrorContains(t, err, "expected 2")

	_, err = e.EmbedDocuments(ctx, []string{"a", "b"})
	assert.Error(t, err)
}

func TestWithDimensionCheck_PassesErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	e := WithDimensionCheck(&stubEmbedder{err: boom})
	_, err := e.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, &config.LLMConfig{Provider: "hashing", Dimension: 16})
	require.NoError(t, err)
	v, err := e.EmbedQuery(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, v, 16)

	_, err = New(ctx, &config.LLMConfig{Provider: "word2vec"})
	assert.Error(t, err)

	_, err = New(ctx, &config.LLMConfig{Provider: "gemini"})
	assert.Error(t, err)
}

type closingEmbedder struct {
	stubEmbedder
	closed bool
}

func (c *closingEmbedder) Close() error {
	c.closed = true
	return nil
}

func TestDimensionCheckForwardsClose(t *testing.T) {
	inner := &closingEmbedder{}
	e := WithDimensionCheck(inner)
	closer, ok := e.(io.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
	assert.True(t, inner.closed)

	plain, ok := WithDimensionCheck(NewHashingEmbedder(8)).(io.Closer)
	require.True(t, ok)
	assert.NoError(t, plain.Close())
}
