package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

type embeddingRow struct {
	bun.BaseModel `bun:"table:qa_embeddings,alias:e"`
	Seq           int64           `bun:"seq,pk,autoincrement"`
	Ref           string          `bun:"ref,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Distance      float64         `bun:"distance,scanonly"`
}

// PGVector keeps the vectors in a Postgres table with the pgvector extension.
// The table is recreated on startup: nothing survives a process restart.
type PGVector struct {
	db *bun.DB

	mu  sync.Mutex
	dim int
}

var _ Index = (*PGVector)(nil)

// ConnectDB opens the database with either the bun pgdriver or lib/pq ("postgres").
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return sql.Open("postgres", cfg.URL)
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// NewPGVector connects, enables the vector extension and recreates the table.
func NewPGVector(ctx context.Context, cfg *config.DatabaseConfig) (*PGVector, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewDropTable().Model((*embeddingRow)(nil)).IfExists().Exec(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to drop embeddings table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*embeddingRow)(nil)).Exec(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create embeddings table: %w", err)
	}
	log.Debug().Msg("pgvector index ready")
	return &PGVector{db: db}, nil
}

func (p *PGVector) Close() error {
	return p.db.Close()
}

func (p *PGVector) Add(ctx context.Context, vectors [][]float32, refs []string) error {
	if len(vectors) == 0 && len(refs) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	dim, err := checkBatch(vectors, refs, p.dim)
	if err != nil {
		return err
	}
	if err := insertRows(ctx, p.db, vectors, refs); err != nil {
		return err
	}
	p.dim = dim
	return nil
}

func insertRows(ctx context.Context, db bun.IDB, vectors [][]float32, refs []string) error {
	if len(vectors) == 0 {
		return nil
	}
	rows := make([]embeddingRow, len(vectors))
	for i, v := range vectors {
		rows[i] = embeddingRow{Ref: refs[i], Embedding: pgvector.NewVector(v)}
	}
	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store embeddings: %w", err)
	}
	return nil
}

func (p *PGVector) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if k <= 0 {
		return []models.Hit{}, nil
	}
	p.mu.Lock()
	dim := p.dim
	p.mu.Unlock()
	if dim != 0 && len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(query), dim)
	}
	var rows []embeddingRow
	err := p.db.NewSelect().
		Model(&rows).
		Column("seq", "ref").
		ColumnExpr("power(embedding <-> ?, 2) AS distance", pgvector.NewVector(query)).
		OrderExpr("distance ASC, seq ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	out := make([]models.Hit, len(rows))
	for i, r := range rows {
		out[i] = models.Hit{Ref: r.Ref, Distance: r.Distance}
	}
	return out, nil
}

// Rebuild swaps the table content inside one transaction.
func (p *PGVector) Rebuild(ctx context.Context, vectors [][]float32, refs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	dim, err := checkBatch(vectors, refs, p.dim)
	if err != nil {
		return err
	}
	err = p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*embeddingRow)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear embeddings: %w", err)
		}
		return insertRows(ctx, tx, vectors, refs)
	})
	if err != nil {
		return err
	}
	if len(vectors) > 0 {
		p.dim = dim
	}
	return nil
}

func (p *PGVector) Len(ctx context.Context) (int, error) {
	return p.db.NewSelect().Model((*embeddingRow)(nil)).Count(ctx)
}
