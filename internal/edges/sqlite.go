package edges

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

const edgeColumns = `id, from_id, to_id, from_lat, from_lng, to_lat, to_lng, dist_m, cost_s, toll, ferry, unsealed, highway, name, osm_way_id`

type sqliteStore struct {
	db       *sql.DB
	hasRTree bool
}

// openSQLite opens a read-only connection to a precomputed edges database,
// probing for an edges_rtree virtual table and falling back to a plain
// range-scan query when absent.
func openSQLite(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("edges: sqlite path is empty")
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_query_only=true", path))
	if err != nil {
		return nil, fmt.Errorf("edges: open %s: %w", path, err)
	}
	s := &sqliteStore{db: db}
	s.hasRTree = s.checkRTree()
	return s, nil
}

func (s *sqliteStore) checkRTree() bool {
	row := s.db.QueryRow(`SELECT 1 FROM edges_rtree LIMIT 1`)
	var dummy int
	err := row.Scan(&dummy)
	return err == nil || err == sql.ErrNoRows
}

func (s *sqliteStore) QueryBBox(ctx context.Context, bbox domain.BBox, limit int) ([]domain.EdgeRow, error) {
	if limit <= 0 {
		limit = 350000
	}
	var rows *sql.Rows
	var err error
	if s.hasRTree {
		q := fmt.Sprintf(`
			SELECT %s FROM edges e
			JOIN edges_rtree r ON r.id = e.id
			WHERE r.minX <= ? AND r.maxX >= ? AND r.minY <= ? AND r.maxY >= ?
			LIMIT ?`, edgeColumns)
		rows, err = s.db.QueryContext(ctx, q, bbox.MaxLng, bbox.MinLng, bbox.MaxLat, bbox.MinLat, limit)
	} else {
		q := fmt.Sprintf(`
			SELECT %s FROM edges
			WHERE (from_lng BETWEEN ? AND ? AND from_lat BETWEEN ? AND ?)
			   OR (to_lng BETWEEN ? AND ? AND to_lat BETWEEN ? AND ?)
			LIMIT ?`, edgeColumns)
		rows, err = s.db.QueryContext(ctx, q,
			bbox.MinLng, bbox.MaxLng, bbox.MinLat, bbox.MaxLat,
			bbox.MinLng, bbox.MaxLng, bbox.MinLat, bbox.MaxLat,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("edges: query bbox: %w", err)
	}
	defer rows.Close()
	return scanEdgeRows(rows)
}

func (s *sqliteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("edges: count: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func scanEdgeRows(rows *sql.Rows) ([]domain.EdgeRow, error) {
	var out []domain.EdgeRow
	for rows.Next() {
		var e domain.EdgeRow
		if err := rows.Scan(
			&e.ID, &e.FromID, &e.ToID, &e.FromLat, &e.FromLng, &e.ToLat, &e.ToLng,
			&e.DistM, &e.CostS, &e.Toll, &e.Ferry, &e.Unsealed, &e.Highway, &e.Name, &e.OSMWayID,
		); err != nil {
			return nil, fmt.Errorf("edges: scan row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
