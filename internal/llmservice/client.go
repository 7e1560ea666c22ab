package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Generator answers a query from a context string and condenses whole contexts.
type Generator interface {
	Generate(ctx context.Context, docContext, query string) (string, error)
	Summarize(ctx context.Context, docContext string) (string, error)
}

// New builds the generator named in cfg.Provider. summarySentences only applies to
// the extractive generator.
func New(ctx context.Context, cfg *config.LLMConfig, summarySentences int) (Generator, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Loaded generator config")

	switch cfg.Provider {
	case "extractive", "":
		return NewExtractive(summarySentences), nil
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("error initializing openai client: %w", err)
		}
		return NewLLMGenerator(llm), nil
	case "ollama":
		llm, err := ollama.New(ollama.WithServerURL(cfg.BaseURL), ollama.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("error initializing ollama client: %w", err)
		}
		return NewLLMGenerator(llm), nil
	case "gemini":
		return NewGeminiLLM(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

var thinkRe = regexp.MustCompile(models.ThinkTag)

// LLMGenerator drives any langchaingo chat model.
type LLMGenerator struct {
	llm llms.Model
}

func NewLLMGenerator(llm llms.Model) *LLMGenerator {
	return &LLMGenerator{llm: llm}
}

func (g *LLMGenerator) Generate(ctx context.Context, docContext, query string) (string, error) {
	return g.call(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, models.AnswerSystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, fmt.Sprintf(models.AnswerPromptTemplate, docContext, query)),
	})
}

func (g *LLMGenerator) Summarize(ctx context.Context, docContext string) (string, error) {
	return g.call(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, fmt.Sprintf(models.SummaryPromptTemplate, docContext)),
	})
}

func (g *LLMGenerator) call(ctx context.Context, messages []llms.MessageContent) (string, error) {
	res, err := g.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return cleanOutput(res.Choices[0].Content), nil
}

// cleanOutput removes reasoning blocks some models emit before the answer.
func cleanOutput(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}
