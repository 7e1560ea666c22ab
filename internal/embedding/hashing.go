package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const defaultHashingDimension = 384

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashingEmbedder is an offline embedder: every token is hashed into one of dim
// signed buckets and the result is L2-normalized. Bucket 0 carries a small constant
// so that no vector is ever all zeros.
type HashingEmbedder struct {
	dim       int
	stopwords map[string]struct{}
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 1 {
		dim = defaultHashingDimension
	}
	return &HashingEmbedder{dim: dim, stopwords: defaultStopwords()}
}

func (h *HashingEmbedder) Dimension() int { return h.dim }

func (h *HashingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

func (h *HashingEmbedder) embed(text string) []float32 {
	counts := make(map[string]int)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if _, ok := h.stopwords[tok]; ok {
			continue
		}
		counts[tok]++
	}

	v := make([]float64, h.dim)
	v[0] = 0.01
	for tok, n := range counts {
		f := fnv.New32a()
		f.Write([]byte(tok))
		sum := f.Sum32()
		bucket := 1 + int(sum%uint32(h.dim-1))
		weight := 1 + math.Log(float64(n))
		if sum&(1<<31) != 0 {
			weight = -weight
		}
		v[bucket] += weight
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	out := make([]float32, h.dim)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "what", "which", "who", "how", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var _ Embedder = (*HashingEmbedder)(nil)
