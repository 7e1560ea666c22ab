package llmservice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"document-qa/internal/config"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLLMGenerator_Generate(t *testing.T) {
	model := &fakeModel{reply: "<think>looking at the context</think>\nParis."}
	g := NewLLMGenerator(model)

	answer, err := g.Generate(context.Background(), "The capital of France is Paris.", "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	require.Len(t, model.messages, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, model.messages[0].Role)
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "The capital of France is Paris.")
	assert.Contains(t, human, "What is the capital of France?")
}

func TestLLMGenerator_Summarize(t *testing.T) {
	model := &fakeModel{reply: "  A summary.  "}
	summary, err := NewLLMGenerator(model).Summarize(context.Background(), "long text")
	require.NoError(t, err)
	assert.Equal(t, "A summary.", summary)
	require.Len(t, model.messages, 1)
}

func TestLLMGenerator_Error(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := NewLLMGenerator(&fakeModel{err: boom}).Generate(context.Background(), "c", "q")
	assert.ErrorIs(t, err, boom)
}

func TestExtractive_Generate(t *testing.T) {
	e := NewExtractive(3)
	ctx := context.Background()

	t.Run("best matching sentence", func(t *testing.T) {
		docContext := "Berlin is in Germany. The capital of France is Paris. Rome has old ruins."
		answer, err := e.Generate(ctx, docContext, "What is the capital of France?")
		require.NoError(t, err)
		assert.Equal(t, "The capital of France is Paris.", answer)
	})

	t.Run("no overlap falls back to context prefix", func(t *testing.T) {
		docContext := strings.Repeat("lorem ipsum ", 100)
		answer, err := e.Generate(ctx, docContext, "zebra?")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(answer, "..."))
		assert.Equal(t, fallbackAnswerRunes+3, len([]rune(answer)))
	})

	t.Run("short context returned whole", func(t *testing.T) {
		answer, err := e.Generate(ctx, "alpha beta", "gamma")
		require.NoError(t, err)
		assert.Equal(t, "alpha beta", answer)
	})
}

func TestExtractive_Summarize(t *testing.T) {
	e := NewExtractive(2)
	text := "Invoices are due monthly. Invoices list every payment. The cat sat. Payment of invoices is tracked."

	summary, err := e.Summarize(context.Background(), text)
	require.NoError(t, err)
	assert.NotContains(t, summary, "The cat sat.")
	assert.Contains(t, summary, "Invoices")

	short, err := e.Summarize(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, short)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	g, err := New(ctx, &config.LLMConfig{Provider: "extractive"}, 3)
	require.NoError(t, err)
	assert.IsType(t, &Extractive{}, g)

	_, err = New(ctx, &config.LLMConfig{Provider: "gemini"}, 3)
	assert.Error(t, err)

	_, err = New(ctx, &config.LLMConfig{Provider: "gpt-j"}, 3)
	assert.Error(t, err)
}
