package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

func NewGeminiLLM(ctx context.Context, cfg *config.LLMConfig) (*GeminiLLM, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("gemini generator requires an API key")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Key))
	if err != nil {
		return nil, err
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) Generate(ctx context.Context, docContext, query string) (string, error) {
	return g.generate(ctx, models.AnswerSystemPrompt, fmt.Sprintf(models.AnswerPromptTemplate, docContext, query))
}

func (g *GeminiLLM) Summarize(ctx context.Context, docContext string) (string, error) {
	return g.generate(ctx, "", fmt.Sprintf(models.SummaryPromptTemplate, docContext))
}

func (g *GeminiLLM) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini generate: empty response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return cleanOutput(b.String()), nil
}

var _ Generator = (*GeminiLLM)(nil)
