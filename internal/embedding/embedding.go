package embedding

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
)

// Embedder maps text to fixed-length vectors. It has the shape of langchaingo's
// embeddings.Embedder, so *embeddings.EmbedderImpl satisfies it directly.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var _ Embedder = (*embeddings.EmbedderImpl)(nil)

// New builds the provider named in cfg.Provider, wrapped in a dimension check.
func New(ctx context.Context, cfg *config.LLMConfig) (Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedder config")

	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "hashing", "":
		e = NewHashingEmbedder(cfg.Dimension)
	case "ollama":
		e, err = NewOllamaEmbedder(cfg)
	case "openai":
		e, err = NewOpenAIEmbedder(cfg)
	case "gemini":
		e, err = NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithDimensionCheck(e), nil
}

// NewOpenAIEmbedder creates an embedder for any OpenAI compatible endpoint.
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("error creating embedder: %w", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("error initializing ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("error creating embedder: %w", err)
	}
	return embedder, nil
}

// dimensionChecked rejects vectors whose length differs from the first one seen.
type dimensionChecked struct {
	Embedder
	mu  sync.Mutex
	dim int
}

// WithDimensionCheck makes a provider that changes its output size mid-process fail
// with an error instead of corrupting the index.
func WithDimensionCheck(e Embedder) Embedder {
	return &dimensionChecked{Embedder: e}
}

func (d *dimensionChecked) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := d.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for _, v := range vectors {
		if err := d.check(v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

func (d *dimensionChecked) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := d.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := d.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Close releases the wrapped provider when it holds a client.
func (d *dimensionChecked) Close() error {
	if c, ok := d.Embedder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *dimensionChecked) check(v []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(v) == 0 {
		return fmt.Errorf("embedder returned an empty vector")
	}
	if d.dim == 0 {
		d.dim = len(v)
	}
	if len(v) != d.dim {
		return fmt.Errorf("embedder returned %d dimensions, expected %d", len(v), d.dim)
	}
	return nil
}
