// Package edges is the road-network edge store adapter: one
// interface, two backends. A precomputed road graph ships either as a
// read-only SQLite file (with or without an R*Tree spatial index) or a
// Postgres/PostGIS database; callers never know which.
package edges

import (
	"context"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// Store queries a bbox-indexed road edge graph.
type Store interface {
	QueryBBox(ctx context.Context, bbox domain.BBox, limit int) ([]domain.EdgeRow, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Config selects and configures a Store backend.
type Config struct {
	// DatabaseURL, if set, selects the Postgres/PostGIS backend.
	DatabaseURL string
	// SQLitePath is used when DatabaseURL is empty.
	SQLitePath string
}

// Open selects a backend per Config: Postgres takes priority over SQLite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.DatabaseURL != "" {
		return openPostgres(ctx, cfg.DatabaseURL)
	}
	return openSQLite(cfg.SQLitePath)
}
