package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// ParseOSMIdentity splits a PlaceItem.ID of the form "osm:<osm_type>:<osm_id>"
// (e.g. "osm:node:123456") into its two parts.
func ParseOSMIdentity(id string) (osmType string, osmID int64, ok bool) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != "osm" {
		return "", 0, false
	}
	n, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[1], n, true
}

// FormatOSMIdentity builds the canonical "osm:<osm_type>:<osm_id>" PlaceItem.ID.
func FormatOSMIdentity(osmType string, osmID int64) string {
	return fmt.Sprintf("osm:%s:%d", osmType, osmID)
}

// UpsertPlacesItems writes the canonical POI rows into the local store,
// keeping the earliest first_seen and refreshing last_seen on every write.
func (s *Store) UpsertPlacesItems(ctx context.Context, items []domain.PlaceItem) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin places upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO places_items (osm_type, osm_id, lat, lng, name, category, tags_json, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(osm_type, osm_id) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			name = COALESCE(NULLIF(excluded.name, ''), places_items.name),
			category = COALESCE(NULLIF(excluded.category, ''), places_items.category),
			tags_json = excluded.tags_json,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("cache: prepare places upsert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		osmType, osmID, ok := ParseOSMIdentity(it.ID)
		if !ok {
			continue
		}
		tagsJSON, err := json.Marshal(it.Extra)
		if err != nil {
			return fmt.Errorf("cache: marshal place tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, osmType, osmID, it.Lat, it.Lng, it.Name, string(it.Category), tagsJSON, now, now); err != nil {
			return fmt.Errorf("cache: upsert place item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// QueryPlacesBBox returns up to limit items within bbox, optionally
// filtered to categories.
func (s *Store) QueryPlacesBBox(ctx context.Context, bbox domain.BBox, categories []string, limit int) ([]domain.PlaceItem, error) {
	args := []any{bbox.MinLat, bbox.MaxLat, bbox.MinLng, bbox.MaxLng}
	q := `SELECT osm_type, osm_id, lat, lng, name, category, tags_json FROM places_items
	      WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`
	if len(categories) > 0 {
		placeholders := make([]string, len(categories))
		for i, c := range categories {
			placeholders[i] = "?"
			args = append(args, c)
		}
		q += " AND category IN (" + strings.Join(placeholders, ",") + ")"
	}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("cache: query places bbox: %w", err)
	}
	defer rows.Close()
	return scanPlaceItems(rows)
}

func scanPlaceItems(rows *sql.Rows) ([]domain.PlaceItem, error) {
	var out []domain.PlaceItem
	for rows.Next() {
		var osmType, name, category string
		var osmID int64
		var lat, lng float64
		var tagsJSON []byte
		if err := rows.Scan(&osmType, &osmID, &lat, &lng, &name, &category, &tagsJSON); err != nil {
			return nil, fmt.Errorf("cache: scan place item: %w", err)
		}
		var extra map[string]any
		if len(tagsJSON) > 0 {
			_ = json.Unmarshal(tagsJSON, &extra)
		}
		out = append(out, domain.PlaceItem{
			ID:       FormatOSMIdentity(osmType, osmID),
			Name:     name,
			Lat:      lat,
			Lng:      lng,
			Category: domain.PlaceCategory(category),
			Extra:    extra,
		})
	}
	return out, rows.Err()
}

// TileIsFresh reports whether tileKey was fetched within ttlS seconds.
func (s *Store) TileIsFresh(ctx context.Context, tileKey string, ttlS int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_fetched FROM places_tile_state WHERE tile_key = ?`, tileKey)
	var lastFetched string
	if err := row.Scan(&lastFetched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("cache: tile_is_fresh: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, lastFetched)
	if err != nil {
		return false, nil
	}
	return time.Since(t).Seconds() < float64(ttlS), nil
}

// ResetTilesInBBox deletes every tile-ledger row intersecting bbox so the
// next search treating those tiles as stale re-fetches them, returning
// how many rows were reset.
func (s *Store) ResetTilesInBBox(ctx context.Context, bbox domain.BBox) (int, error) {
	q := `DELETE FROM places_tile_state
	      WHERE NOT (max_lng < ? OR min_lng > ? OR max_lat < ? OR min_lat > ?)`
	res, err := s.db.ExecContext(ctx, q, bbox.MinLng, bbox.MaxLng, bbox.MinLat, bbox.MaxLat)
	if err != nil {
		return 0, fmt.Errorf("cache: reset tiles: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarkTileFetched records that tileKey was just fetched, covering bbox and
// categories, with itemCount items harvested.
func (s *Store) MarkTileFetched(ctx context.Context, tileKey string, bbox domain.BBox, categories []string, itemCount int) error {
	catJSON, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("cache: marshal tile categories: %w", err)
	}
	q := `INSERT INTO places_tile_state (tile_key, min_lat, min_lng, max_lat, max_lng, categories_json, item_count, last_fetched)
	      VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	      ON CONFLICT(tile_key) DO UPDATE SET
	          item_count = excluded.item_count,
	          categories_json = excluded.categories_json,
	          last_fetched = excluded.last_fetched`
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, q, tileKey, bbox.MinLat, bbox.MinLng, bbox.MaxLat, bbox.MaxLng, catJSON, itemCount, now); err != nil {
		return fmt.Errorf("cache: mark_tile_fetched: %w", err)
	}
	return nil
}
