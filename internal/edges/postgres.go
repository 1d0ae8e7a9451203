package edges

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

type postgresStore struct {
	db *sql.DB
}

// openPostgres connects to a PostGIS-backed edges database; the bbox
// predicate is an ST_MakeEnvelope intersection against the edge geometry.
func openPostgres(ctx context.Context, databaseURL string) (Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("edges: open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("edges: ping postgres: %w", err)
	}
	return &postgresStore{db: db}, nil
}

func (s *postgresStore) QueryBBox(ctx context.Context, bbox domain.BBox, limit int) ([]domain.EdgeRow, error) {
	if limit <= 0 {
		limit = 350000
	}
	const q = `
		SELECT id, from_id, to_id, from_lat, from_lng, to_lat, to_lng,
		       dist_m, cost_s, toll, ferry, unsealed, highway, name, osm_way_id
		FROM edges
		WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		LIMIT $5`
	rows, err := s.db.QueryContext(ctx, q, bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat, limit)
	if err != nil {
		return nil, fmt.Errorf("edges: query bbox: %w", err)
	}
	defer rows.Close()
	return scanEdgeRows(rows)
}

func (s *postgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("edges: count: %w", err)
	}
	return n, nil
}

func (s *postgresStore) Close() error { return s.db.Close() }
