// Package rag ties extraction, the document store and the query router together
// behind the operations the CLI and the HTTP server expose.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/router"
	"document-qa/internal/store"
	"document-qa/internal/vectorindex"
)

var ErrMissingFilename = errors.New("upload without a filename")

type RAG struct {
	store     *store.Store
	router    *router.Router
	extractor *parser.Extractor

	workers           int
	rejectErrorMarker bool

	// batchMu makes the capacity check and the ingestion of a batch one step.
	batchMu sync.Mutex
}

type Options struct {
	ExtractWorkers    int
	RejectErrorMarker bool
}

func NewRAG(st *store.Store, rt *router.Router, ex *parser.Extractor, opts Options) *RAG {
	if opts.ExtractWorkers <= 0 {
		opts.ExtractWorkers = 4
	}
	return &RAG{
		store:             st,
		router:            rt,
		extractor:         ex,
		workers:           opts.ExtractWorkers,
		rejectErrorMarker: opts.RejectErrorMarker,
	}
}

// New builds the providers, the index and the service from cfg. The returned close
// function releases the index backend and any provider client.
func New(ctx context.Context, cfg *config.Config) (*RAG, func() error, error) {
	embedder, err := embedding.New(ctx, &cfg.EmbedLLM)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding provider: %w", err)
	}
	generator, err := llmservice.New(ctx, &cfg.LLM, cfg.RAG.SummarySentences)
	if err != nil {
		_ = closerOf(embedder)()
		return nil, nil, fmt.Errorf("generator: %w", err)
	}
	index, closeIndex, err := vectorindex.Open(ctx, cfg)
	if err != nil {
		_ = closeAll(closerOf(generator), closerOf(embedder))()
		return nil, nil, fmt.Errorf("vector index: %w", err)
	}
	closeFn := closeAll(closeIndex, closerOf(generator), closerOf(embedder))

	st := store.New(embedder, index,
		store.WithChunking(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		store.WithMaxDocuments(cfg.RAG.MaxDocuments),
	)
	rt := router.New(st, embedder, generator, router.WithTopK(cfg.RAG.TopK))
	ex := parser.NewExtractor(parser.WithCrawlLinks(cfg.RAG.CrawlLinks))

	log.Info().
		Str("embedder", cfg.EmbedLLM.Provider).
		Str("generator", cfg.LLM.Provider).
		Str("index", cfg.Index.Backend).
		Int("max_documents", st.Limit()).
		Msg("rag service ready")

	return NewRAG(st, rt, ex, Options{
		ExtractWorkers:    cfg.RAG.ExtractWorkers,
		RejectErrorMarker: cfg.RAG.RejectErrorMarker,
	}), closeFn, nil
}

func closerOf(v interface{}) func() error {
	if c, ok := v.(io.Closer); ok {
		return c.Close
	}
	return func() error { return nil }
}

// closeAll runs every function in order and joins their errors.
func closeAll(fns ...func() error) func() error {
	return func() error {
		var errs []error
		for _, fn := range fns {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Upload ingests a batch. A batch that would exceed the document limit is rejected
// as a whole with a *store.CapacityError before any file is read. Otherwise every
// file gets a result of its own in the report.
func (r *RAG) Upload(ctx context.Context, files []models.Upload) (models.IngestReport, error) {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	names := make([]string, len(files))
	for i, f := range files {
		if strings.TrimSpace(f.Filename) == "" {
			return models.IngestReport{}, ErrMissingFilename
		}
		names[i] = f.Filename
	}
	if err := r.store.CheckCapacity(names); err != nil {
		return models.IngestReport{}, err
	}

	extractions := r.extractAll(ctx, files)

	report := models.IngestReport{Files: make([]models.FileResult, 0, len(files))}
	for i, f := range files {
		report.Files = append(report.Files, r.ingest(ctx, f.Filename, extractions[i]))
	}
	report.Count = r.store.Count()
	return report, nil
}

// extractAll runs the extractors in parallel. Files already indexed are not read.
func (r *RAG) extractAll(ctx context.Context, files []models.Upload) []*models.Extraction {
	out := make([]*models.Extraction, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, f := range files {
		if r.store.Has(f.Filename) {
			continue
		}
		i, f := i, f
		g.Go(func() error {
			res := r.extractor.Extract(gctx, f.Data, parser.TypeOf(f.Filename, f.ContentType))
			out[i] = &res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *RAG) ingest(ctx context.Context, filename string, ex *models.Extraction) models.FileResult {
	res := models.FileResult{Filename: filename}
	if ex == nil || r.store.Has(filename) {
		res.Skipped = true
		return res
	}
	if !ex.OK {
		log.Warn().Str("filename", filename).Str("reason", ex.Reason).Msg("extraction failed")
		res.Error = ex.Reason
		return res
	}
	if r.rejectErrorMarker && strings.Contains(ex.Text, models.ErrorMarker) {
		log.Warn().Str("filename", filename).Msg("extracted text carries the error marker, not indexing")
		res.Error = fmt.Sprintf("extracted text contains %q", models.ErrorMarker)
		return res
	}

	n, err := r.store.Ingest(ctx, filename, ex.Text, ex.Table)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("ingest failed")
		res.Error = err.Error()
		return res
	}
	res.Chunks = n
	return res
}

// IngestURL fetches a web page and indexes it under its URL.
func (r *RAG) IngestURL(ctx context.Context, url string) (models.FileResult, error) {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	if r.store.Has(url) {
		return models.FileResult{Filename: url, Skipped: true}, nil
	}
	if err := r.store.CheckCapacity([]string{url}); err != nil {
		return models.FileResult{}, err
	}
	ex := r.extractor.FetchURL(ctx, url)
	return r.ingest(ctx, url, &ex), nil
}

// Query answers query; see router.Router.Answer.
func (r *RAG) Query(ctx context.Context, query string) (models.Answer, error) {
	ans, err := r.router.Answer(ctx, query)
	if err != nil {
		return models.Answer{}, err
	}
	log.Debug().Str("query", query).Str("kind", string(ans.Kind)).Str("state", string(ans.State)).Msg("query answered")
	return ans, nil
}

func (r *RAG) Summarize(ctx context.Context) models.Answer {
	return r.router.Summarize(ctx)
}

// Delete removes a document; unknown names give store.ErrUnknownFilename.
func (r *RAG) Delete(ctx context.Context, filename string) error {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.store.Delete(ctx, filename)
}

func (r *RAG) Documents() []string {
	return r.store.ListFilenames()
}

func (r *RAG) Count() int {
	return r.store.Count()
}
