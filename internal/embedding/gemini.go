package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"document-qa/internal/config"
)

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.LLMConfig) (*GeminiEmbedder, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("gemini embedder requires an API key")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Key))
	if err != nil {
		return nil, err
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedDocuments batches all texts in one request via BatchEmbedContents.
func (g *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := g.client.EmbeddingModel(g.modelName).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return res.Embedding.Values, nil
}

var _ Embedder = (*GeminiEmbedder)(nil)
