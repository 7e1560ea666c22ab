// Package router decides whether a query is answered from tables or by retrieval,
// and attaches the source filenames to the answer.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
)

const DefaultTopK = 3

var ErrEmptyQuery = errors.New("query is empty")

// Documents is the read side of the document store.
type Documents interface {
	Count() int
	ListFilenames() []string
	Search(ctx context.Context, vector []float32, k int) ([]models.ScoredDocument, error)
	Tables() []models.NamedTable
	Texts() []string
}

type Router struct {
	docs       Documents
	embedder   embedding.Embedder
	generator  llmservice.Generator
	classifier Classifier
	topK       int
}

type Option func(*Router)

func WithTopK(k int) Option {
	return func(r *Router) {
		if k > 0 {
			r.topK = k
		}
	}
}

func WithClassifier(c Classifier) Option {
	return func(r *Router) {
		if c != nil {
			r.classifier = c
		}
	}
}

func New(docs Documents, embedder embedding.Embedder, generator llmservice.Generator, opts ...Option) *Router {
	r := &Router{
		docs:       docs,
		embedder:   embedder,
		generator:  generator,
		classifier: PatternClassifier{},
		topK:       DefaultTopK,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Answer classifies query and answers it. Failures of the providers or of a table
// evaluation come back as an Errored answer, not as an error; the only error is
// ErrEmptyQuery.
func (r *Router) Answer(ctx context.Context, query string) (models.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.Answer{}, ErrEmptyQuery
	}

	c := r.classifier.Classify(query)
	if c.Kind == models.KindStructured {
		if ans, ok := r.structured(c); ok {
			return ans, nil
		}
		log.Debug().Str("query", query).Str("column", c.Column).Msg("no table matches, falling back to retrieval")
	}
	return r.semantic(ctx, query), nil
}

func (r *Router) structured(c Classification) (models.Answer, bool) {
	nt, ok := findTable(r.docs.Tables(), c)
	if !ok {
		return models.Answer{}, false
	}
	text, err := evaluate(nt.Table, c)
	if err != nil {
		log.Warn().Err(err).Str("filename", nt.Filename).Msg("structured query failed")
		return errored(models.KindStructured, fmt.Sprintf(models.DataQueryErrorTemplate, err)), true
	}
	return models.Answer{
		Text:       text,
		References: []string{nt.Filename},
		Kind:       models.KindStructured,
		State:      models.StateAnswered,
	}, true
}

func (r *Router) semantic(ctx context.Context, query string) models.Answer {
	if r.docs.Count() == 0 {
		return answered(models.KindSemantic, models.NoDocumentsMessage, nil)
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("embedding query failed")
		return errored(models.KindSemantic, fmt.Sprintf(models.AnswerErrorTemplate, err))
	}
	results, err := r.docs.Search(ctx, vector, r.topK)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("search failed")
		return errored(models.KindSemantic, fmt.Sprintf(models.AnswerErrorTemplate, err))
	}
	if len(results) == 0 {
		return answered(models.KindSemantic, models.NotAvailableMessage, nil)
	}

	texts := make([]string, len(results))
	refs := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Document.Text
		refs[i] = res.Document.SourceFilename
	}
	text, err := r.generator.Generate(ctx, strings.Join(texts, models.ContextSeparator), query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("generating answer failed")
		return errored(models.KindSemantic, fmt.Sprintf(models.AnswerErrorTemplate, err))
	}
	return answered(models.KindSemantic, text, helper.Unique(refs))
}

// Summarize condenses every stored chunk, in store order.
func (r *Router) Summarize(ctx context.Context) models.Answer {
	texts := r.docs.Texts()
	if len(texts) == 0 {
		return answered(models.KindSummary, models.NoDocumentsMessage, nil)
	}
	text, err := r.generator.Summarize(ctx, strings.Join(texts, models.ContextSeparator))
	if err != nil {
		log.Error().Err(err).Msg("summarizing failed")
		return errored(models.KindSummary, fmt.Sprintf(models.SummaryErrorTemplate, err))
	}
	return answered(models.KindSummary, text, r.docs.ListFilenames())
}

func answered(kind models.QueryKind, text string, refs []string) models.Answer {
	if refs == nil {
		refs = []string{}
	}
	return models.Answer{Text: text, References: refs, Kind: kind, State: models.StateAnswered}
}

func errored(kind models.QueryKind, text string) models.Answer {
	return models.Answer{Text: text, References: []string{}, Kind: kind, State: models.StateErrored}
}
