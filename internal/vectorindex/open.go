package vectorindex

import (
	"context"
	"fmt"

	"document-qa/internal/config"
)

// Open builds the backend named in cfg.Index.Backend. The returned close function is
// never nil.
func Open(ctx context.Context, cfg *config.Config) (Index, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Index.Backend {
	case "memory", "":
		return NewMemory(), noop, nil
	case "chromem":
		c, err := NewChromem(cfg.Index.Collection)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	case "pgvector":
		p, err := NewPGVector(ctx, &cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
