package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/router"
	"document-qa/internal/store"
	"document-qa/internal/vectorindex"
)

func newTestRAG(opts Options) *RAG {
	e := embedding.NewHashingEmbedder(128)
	st := store.New(e, vectorindex.NewMemory())
	rt := router.New(st, e, llmservice.NewExtractive(3))
	return NewRAG(st, rt, parser.NewExtractor(), opts)
}

func txt(name, body string) models.Upload {
	return models.Upload{Filename: name, ContentType: "text/plain", Data: []byte(body)}
}

func TestUploadAndAsk(t *testing.T) {
	ctx := context.Background()
	r := newTestRAG(Options{})

	report, err := r.Upload(ctx, []models.Upload{txt("notes.txt", "The capital of France is Paris.")})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, 1, report.Files[0].Chunks)
	assert.Empty(t, report.Files[0].Error)
	assert.Equal(t, 1, report.Count)

	ans, err := r.Query(ctx, "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "Paris")
	assert.Equal(t, []string{"notes.txt"}, ans.References)
}

func TestAskEmptyStore(t *testing.T) {
	ans, err := newTestRAG(Options{}).Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, models.NoDocumentsMessage, ans.Text)
	assert.Empty(t, ans.References)
}

func TestAskEmptyQuery(t *testing.T) {
	_, err := newTestRAG(Options{}).Query(context.Background(), "")
	assert.ErrorIs(t, err, router.ErrEmptyQuery)
}

func TestSumOfAmountFromCSV(t *testing.T) {
	ctx := context.Background()
	r := newTestRAG(Options{})
	csv := models.Upload{Filename: "sales.csv", Data: []byte("item,amount\napple,10\npear,20\nplum,30\n")}
	_, err := r.Upload(ctx, []models.Upload{csv})
	require.NoError(t, err)

	ans, err := r.Query(ctx, "sum of amount")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "60")
	assert.Equal(t, []string{"sales.csv"}, ans.References)
}

func TestUploadDuplicatesAreSkipped(t *testing.T) {
	ctx := context.Background()
	r := newTestRAG(Options{})

	report, err := r.Upload(ctx, []models.Upload{txt("a.txt", "alpha"), txt("a.txt", "alpha again")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files[0].Chunks)
	assert.True(t, report.Files[1].Skipped)

	report, err = r.Upload(ctx, []models.Upload{txt("a.txt", "alpha")})
	require.NoError(t, err)
	assert.True(t, report.Files[0].Skipped)
	assert.Equal(t, 1, r.Count())
}

func TestUploadReportsFailedFiles(t *testing.T) {
	ctx := context.Background()
	r := newTestRAG(Options{})

	report, err := r.Upload(ctx, []models.Upload{
		{Filename: "broken.pdf", Data: []byte("not a pdf")},
		{Filename: "program.exe", Data: []byte("MZ")},
		txt("good.txt", "good content"),
	})
	require.NoError(t, err)
	require.Len(t, report.Files, 3)
	assert.NotEmpty(t, report.Files[0].Error)
	assert.NotEmpty(t, report.Files[1].Error)
	assert.Empty(t, report.Files[2].Error)
	assert.Equal(t, []string{"good.txt"}, r.Documents())
}

func TestUploadMissingFilename(t *testing.T) {
	_, err := newTestRAG(Options{}).Upload(context.Background(), []models.Upload{txt("", "x")})
	assert.ErrorIs(t, err, ErrMissingFilename)
}

func TestErrorMarkerRule(t *testing.T) {
	ctx := context.Background()
	body := "Error handling is covered in chapter two."

	strict := newTestRAG(Options{RejectErrorMarker: true})
	report, err := strict.Upload(ctx, []models.Upload{txt("errors.txt", body)})
	require.NoError(t, err)
	assert.NotEmpty(t, report.Files[0].Error)
	assert.Equal(t, 0, strict.Count())

	lenient := newTestRAG(Options{})
	_, err = lenient.Upload(ctx, []models.Upload{txt("errors.txt", body)})
	require.NoError(t, err)
	assert.Equal(t, 1, lenient.Count())
}

func TestUploadCapRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	r := newTestRAG(Options{})

	var batch []models.Upload
	for i := 0; i < 10; i++ {
		batch = append(batch, txt(fmt.Sprintf("doc%d.txt", i), fmt.Sprintf("content %d", i)))
	}
	_, err := r.Upload(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 10, r.Count())

	_, err = r.Upload(ctx, []models.Upload{txt("doc0.txt", "again"), txt("new.txt", "new")})
	var capErr *store.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 10, capErr.Current)
	assert.Equal(t, 1, capErr.Attempted)
	assert.Equal(t, 10, r.Count())
}

func TestDeleteGhost(t *testing.T) {
	ctx := context.Background()
	r := newTestRAG(Options{})
	_, err := r.Upload(ctx, []models.Upload{txt("real.txt", "real content")})
	require.NoError(t, err)

	assert.ErrorIs(t, r.Delete(ctx, "ghost.pdf"), store.ErrUnknownFilename)
	assert.Equal(t, []string{"real.txt"}, r.Documents())

	require.NoError(t, r.Delete(ctx, "real.txt"))
	assert.Equal(t, 0, r.Count())
	ans, err := r.Query(ctx, "real")
	require.NoError(t, err)
	assert.Equal(t, models.NoDocumentsMessage, ans.Text)
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	r := newTestRAG(Options{})
	assert.Equal(t, models.NoDocumentsMessage, r.Summarize(ctx).Text)

	_, err := r.Upload(ctx, []models.Upload{txt("story.txt", "Cats sleep all day. Cats chase mice at night. Dogs bark.")})
	require.NoError(t, err)
	ans := r.Summarize(ctx)
	assert.Equal(t, models.StateAnswered, ans.State)
	assert.Contains(t, ans.Text, "Cats")
}

func TestNewFromDefaultConfig(t *testing.T) {
	r, closeFn, err := New(context.Background(), config.Default())
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, 0, r.Count())
}

type closeRecorder struct {
	name  string
	order *[]string
	err   error
}

func (c *closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestCloseAllReleasesEverything(t *testing.T) {
	var order []string
	boom := errors.New("close failed")
	index := &closeRecorder{name: "index", order: &order, err: boom}
	gen := &closeRecorder{name: "generator", order: &order}

	err := closeAll(index.Close, closerOf(gen), closerOf("no closer"))()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"index", "generator"}, order)
}
