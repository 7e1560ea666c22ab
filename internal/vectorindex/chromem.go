package vectorindex

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

const seqKey = "seq"

// Chromem keeps the vectors in a chromem-go collection. chromem normalizes every
// vector, so the reported distance is 2 - 2*cosine: the squared Euclidean distance
// between the normalized vectors.
type Chromem struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	generation int
	dim        int
	seq        int64
}

var _ Index = (*Chromem)(nil)

// NewChromem creates an in-memory chromem database holding a single live collection.
func NewChromem(collectionName string) (*Chromem, error) {
	c := &Chromem{db: chromem.NewDB(), name: collectionName}
	coll, err := c.db.GetOrCreateCollection(c.collectionName(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}
	c.collection = coll
	return c, nil
}

func (c *Chromem) collectionName() string {
	return fmt.Sprintf("%s-%d", c.name, c.generation)
}

func (c *Chromem) Add(ctx context.Context, vectors [][]float32, refs []string) error {
	if len(vectors) == 0 && len(refs) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dim, err := checkBatch(vectors, refs, c.dim)
	if err != nil {
		return err
	}
	if err := c.addDocs(ctx, c.collection, vectors, refs, c.seq); err != nil {
		return err
	}
	c.dim = dim
	c.seq += int64(len(vectors))
	return nil
}

func (c *Chromem) addDocs(ctx context.Context, coll *chromem.Collection, vectors [][]float32, refs []string, start int64) error {
	if len(vectors) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(vectors))
	for i, v := range vectors {
		docs[i] = chromem.Document{
			ID:        refs[i],
			Content:   refs[i],
			Metadata:  map[string]string{seqKey: strconv.FormatInt(start+int64(i), 10)},
			Embedding: append([]float32(nil), v...),
		}
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add document: %v", err)
	}
	return nil
}

// Search panics when query does not match the dimension of the stored vectors.
func (c *Chromem) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := c.collection.Count()
	if count == 0 || k <= 0 {
		return []models.Hit{}, nil
	}
	if len(query) != c.dim {
		panic(fmt.Sprintf("vectorindex: query has %d dimensions, index has %d", len(query), c.dim))
	}

	// chromem orders equal similarities arbitrarily, so rank the whole collection.
	results, err := c.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	r := make([]ranked, 0, len(results))
	for _, res := range results {
		seq, err := strconv.ParseInt(res.Metadata[seqKey], 10, 64)
		if err != nil {
			log.Warn().Str("ref", res.ID).Msg("chromem result without sequence")
		}
		r = append(r, ranked{
			hit: models.Hit{Ref: res.ID, Distance: max(0, 2-2*float64(res.Similarity))},
			seq: seq,
		})
	}
	sortRanked(r)
	return hits(r, k), nil
}

// Rebuild fills a new collection and only then drops the previous one, so a
// failed rebuild leaves the old content in place.
func (c *Chromem) Rebuild(ctx context.Context, vectors [][]float32, refs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := checkBatch(vectors, refs, c.dim); err != nil {
		return err
	}

	previous := c.collectionName()
	c.generation++
	coll, err := c.db.CreateCollection(c.collectionName(), nil, nil)
	if err != nil {
		c.generation--
		return fmt.Errorf("failed to create collection: %v", err)
	}
	if err := c.addDocs(ctx, coll, vectors, refs, 0); err != nil {
		_ = c.db.DeleteCollection(c.collectionName())
		c.generation--
		return err
	}
	if err := c.db.DeleteCollection(previous); err != nil {
		log.Warn().Err(err).Str("collection", previous).Msg("failed to drop collection")
	}

	c.collection = coll
	c.seq = int64(len(vectors))
	if len(vectors) > 0 {
		c.dim = len(vectors[0])
	}
	return nil
}

func (c *Chromem) Len(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection.Count(), nil
}
