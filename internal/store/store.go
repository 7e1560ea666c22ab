// Package store keeps the indexed documents, the filename registry and the tables of
// spreadsheet-like files, and keeps them consistent with the vector index.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/vectorindex"
)

const DefaultMaxDocuments = 10

var (
	ErrUnknownFilename = errors.New("unknown filename")
	ErrEmptyText       = errors.New("text produced no chunks")
)

// CapacityError rejects an upload that would push the number of distinct files over
// the limit.
type CapacityError struct {
	Current   int
	Attempted int
	Limit     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("document limit exceeded: %d indexed, %d new, limit is %d", e.Current, e.Attempted, e.Limit)
}

// Store owns the document list and the vector index. Writers are serialized by
// writeMu; mu guards documents, registry, tables and the index together.
type Store struct {
	embedder  embedding.Embedder
	index     vectorindex.Index
	limit     int
	chunkSize int
	overlap   int

	writeMu sync.Mutex

	mu     sync.RWMutex
	docs   []models.Document
	byID   map[string]int
	files  []string
	known  map[string]struct{}
	tables map[string]*models.Table
}

type Option func(*Store)

// WithChunking overrides the chunk size and overlap, in runes.
func WithChunking(size, overlap int) Option {
	return func(s *Store) {
		if size > 0 {
			s.chunkSize = size
			s.overlap = overlap
		}
	}
}

// WithMaxDocuments overrides the limit on distinct source files.
func WithMaxDocuments(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

func New(embedder embedding.Embedder, index vectorindex.Index, opts ...Option) *Store {
	s := &Store{
		embedder:  embedder,
		index:     index,
		limit:     DefaultMaxDocuments,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		byID:      map[string]int{},
		known:     map[string]struct{}{},
		tables:    map[string]*models.Table{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Limit() int { return s.limit }

// CheckCapacity reports whether ingesting filenames would exceed the limit. Names
// already registered and repeated names are counted once or not at all.
func (s *Store) CheckCapacity(filenames []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempted := 0
	for _, name := range helper.Unique(filenames) {
		if _, ok := s.known[name]; !ok {
			attempted++
		}
	}
	if len(s.files)+attempted > s.limit {
		return &CapacityError{Current: len(s.files), Attempted: attempted, Limit: s.limit}
	}
	return nil
}

// Ingest chunks, embeds and indexes text under filename and returns the number of
// chunks added. A filename that is already registered is left untouched and 0 is
// returned.
func (s *Store) Ingest(ctx context.Context, filename, text string, table *models.Table) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Has(filename) {
		log.Debug().Str("filename", filename).Msg("already indexed, skipping")
		return 0, nil
	}

	chunks := chunkText(text, s.chunkSize, s.overlap)
	if len(chunks) == 0 {
		return 0, ErrEmptyText
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", filename, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding %s: got %d vectors for %d chunks", filename, len(vectors), len(chunks))
	}
	ids := make([]string, len(chunks))
	for i := range ids {
		if ids[i], err = helper.GenerateUUID(); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.known[filename]; ok {
		return 0, nil
	}
	if len(s.files)+1 > s.limit {
		return 0, &CapacityError{Current: len(s.files), Attempted: 1, Limit: s.limit}
	}

	docs := make([]models.Document, len(chunks))
	refs := make([]string, len(chunks))
	for i, chunk := range chunks {
		docs[i] = models.Document{
			ID:             ids[i],
			Text:           chunk,
			SourceFilename: filename,
			ChunkID:        i + 1,
			Embedding:      vectors[i],
		}
		refs[i] = docs[i].ID
	}
	if err := s.index.Add(ctx, vectors, refs); err != nil {
		return 0, fmt.Errorf("indexing %s: %w", filename, err)
	}

	for _, d := range docs {
		s.byID[d.ID] = len(s.docs)
		s.docs = append(s.docs, d)
	}
	s.files = append(s.files, filename)
	s.known[filename] = struct{}{}
	if table != nil {
		s.tables[filename] = table
	}
	log.Info().Str("filename", filename).Int("chunks", len(docs)).Msg("document indexed")
	return len(docs), nil
}

// Delete removes every document of filename and rebuilds the index from the cached
// embeddings of the rest. If the rebuild fails nothing changes.
func (s *Store) Delete(ctx context.Context, filename string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.known[filename]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFilename, filename)
	}

	remaining := make([]models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		if d.SourceFilename != filename {
			remaining = append(remaining, d)
		}
	}
	vectors := make([][]float32, len(remaining))
	refs := make([]string, len(remaining))
	byID := make(map[string]int, len(remaining))
	for i, d := range remaining {
		vectors[i] = d.Embedding
		refs[i] = d.ID
		byID[d.ID] = i
	}
	if err := s.index.Rebuild(ctx, vectors, refs); err != nil {
		return fmt.Errorf("rebuilding index without %s: %w", filename, err)
	}

	files := make([]string, 0, len(s.files))
	for _, f := range s.files {
		if f != filename {
			files = append(files, f)
		}
	}
	s.docs = remaining
	s.byID = byID
	s.files = files
	delete(s.known, filename)
	delete(s.tables, filename)
	log.Info().Str("filename", filename).Int("documents", len(remaining)).Msg("document deleted")
	return nil
}

// Has reports whether filename is registered.
func (s *Store) Has(filename string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[filename]
	return ok
}

// Count is the number of distinct registered filenames.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// ListFilenames returns the registered filenames in upload order.
func (s *Store) ListFilenames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.files...)
}

// Len is the number of documents (chunks).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) IndexLen(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len(ctx)
}

// Search returns up to k documents nearest to vector, nearest first.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]models.ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.docs) == 0 {
		return []models.ScoredDocument{}, nil
	}
	hits, err := s.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	out := make([]models.ScoredDocument, 0, len(hits))
	for _, h := range hits {
		i, ok := s.byID[h.Ref]
		if !ok {
			log.Warn().Str("ref", h.Ref).Msg("index returned unknown document")
			continue
		}
		out = append(out, models.ScoredDocument{Document: s.docs[i], Distance: h.Distance})
	}
	return out, nil
}

// Tables returns the stored tables in upload order.
func (s *Store) Tables() []models.NamedTable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.NamedTable
	for _, f := range s.files {
		if t, ok := s.tables[f]; ok {
			out = append(out, models.NamedTable{Filename: f, Table: t})
		}
	}
	return out
}

// Texts returns every chunk text in store order.
func (s *Store) Texts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.docs))
	for i, d := range s.docs {
		out[i] = d.Text
	}
	return out
}

// Documents returns a copy of the document list.
func (s *Store) Documents() []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Document{}, s.docs...)
}
