// Package cache is the content-addressed pack store: nav/corridor/places
// /traffic/hazard packs, each keyed by its content hash, and bundle
// manifests, keyed by plan_id, all persisted as JSON blobs. Packs must survive process restarts
// and be queryable by byte size for the bundle manifest, so the backing
// store is SQLite via database/sql, with a golang-lru/v2 layer in front
// of reads for hot packs.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
)

// PackKind names one of the six tables this store maintains.
type PackKind string

const (
	KindNav      PackKind = "nav_packs"
	KindCorridor PackKind = "corridor_packs"
	KindPlaces   PackKind = "places_packs"
	KindTraffic  PackKind = "traffic_packs"
	KindHazard   PackKind = "hazard_packs"
	KindManifest PackKind = "manifests"
)

var packTables = map[PackKind]string{
	KindNav:      "nav_packs",
	KindCorridor: "corridor_packs",
	KindPlaces:   "places_packs",
	KindTraffic:  "traffic_packs",
	KindHazard:   "hazard_packs",
	KindManifest: "manifests",
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nav_packs (
	route_key TEXT PRIMARY KEY,
	algo_version TEXT NOT NULL,
	created_at TEXT NOT NULL,
	pack_json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS corridor_packs (
	corridor_key TEXT PRIMARY KEY,
	algo_version TEXT NOT NULL,
	created_at TEXT NOT NULL,
	pack_json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS places_packs (
	places_key TEXT PRIMARY KEY,
	algo_version TEXT NOT NULL,
	created_at TEXT NOT NULL,
	pack_json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS traffic_packs (
	traffic_key TEXT PRIMARY KEY,
	algo_version TEXT NOT NULL,
	created_at TEXT NOT NULL,
	pack_json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS hazard_packs (
	hazards_key TEXT PRIMARY KEY,
	algo_version TEXT NOT NULL,
	created_at TEXT NOT NULL,
	pack_json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS manifests (
	plan_id TEXT PRIMARY KEY,
	route_key TEXT NOT NULL,
	created_at TEXT NOT NULL,
	manifest_json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS places_items (
	osm_type TEXT NOT NULL,
	osm_id INTEGER NOT NULL,
	lat REAL NOT NULL,
	lng REAL NOT NULL,
	name TEXT,
	category TEXT,
	tags_json BLOB,
	first_seen TEXT NOT NULL,
	last_seen TEXT NOT NULL,
	PRIMARY KEY (osm_type, osm_id)
);
CREATE INDEX IF NOT EXISTS idx_places_items_lat ON places_items(lat);
CREATE INDEX IF NOT EXISTS idx_places_items_lng ON places_items(lng);
CREATE INDEX IF NOT EXISTS idx_places_items_category ON places_items(category);
CREATE TABLE IF NOT EXISTS places_tile_state (
	tile_key TEXT PRIMARY KEY,
	min_lat REAL NOT NULL,
	min_lng REAL NOT NULL,
	max_lat REAL NOT NULL,
	max_lng REAL NOT NULL,
	categories_json BLOB,
	item_count INTEGER NOT NULL DEFAULT 0,
	last_fetched TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_places_tile_state_last_fetched ON places_tile_state(last_fetched);
`

// Store is the SQLite-backed pack store with an in-process LRU layer in
// front of reads.
type Store struct {
	db  *sql.DB
	hot *lru.Cache[string, []byte]
}

// Open connects to (and, if needed, creates) the pack database at path,
// enabling WAL journaling for concurrent readers during writer bursts.
func Open(path string, hotCacheSize int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: ensure schema: %w", err)
	}
	if hotCacheSize <= 0 {
		hotCacheSize = 2048
	}
	hot, err := lru.New[string, []byte](hotCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, hot: hot}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func hotKey(kind PackKind, key string) string { return string(kind) + ":" + key }

func (s *Store) keyColumn(kind PackKind) string {
	switch kind {
	case KindNav:
		return "route_key"
	case KindCorridor:
		return "corridor_key"
	case KindPlaces:
		return "places_key"
	case KindTraffic:
		return "traffic_key"
	case KindHazard:
		return "hazards_key"
	default:
		return ""
	}
}

// PutPack upserts one pack's JSON-encoded value under key, value being any
// of the domain pack types (NavRoute, CorridorGraphPack, PlacesPack,
// TrafficPack, HazardPack).
func (s *Store) PutPack(ctx context.Context, kind PackKind, key, algoVersion string, value any) error {
	table, ok := packTables[kind]
	if !ok || kind == KindManifest {
		return fmt.Errorf("cache: PutPack: unsupported kind %q", kind)
	}
	blob, err := codec.CanonicalJSON(value)
	if err != nil {
		return fmt.Errorf("cache: marshal pack: %w", err)
	}
	col := s.keyColumn(kind)
	q := fmt.Sprintf(
		`INSERT INTO %s (%s, algo_version, created_at, pack_json) VALUES (?, ?, ?, ?)
		 ON CONFLICT(%s) DO UPDATE SET algo_version=excluded.algo_version, created_at=excluded.created_at, pack_json=excluded.pack_json`,
		table, col, col,
	)
	if _, err := s.db.ExecContext(ctx, q, key, algoVersion, time.Now().UTC().Format(time.RFC3339Nano), blob); err != nil {
		return fmt.Errorf("cache: upsert %s: %w", table, err)
	}
	s.hot.Add(hotKey(kind, key), blob)
	return nil
}

// GetPackBytes returns the raw JSON blob for key, consulting the hot cache
// first, or (nil, false, nil) if absent.
func (s *Store) GetPackBytes(ctx context.Context, kind PackKind, key string) ([]byte, bool, error) {
	table, ok := packTables[kind]
	if !ok || kind == KindManifest {
		return nil, false, fmt.Errorf("cache: GetPackBytes: unsupported kind %q", kind)
	}
	if v, ok := s.hot.Get(hotKey(kind, key)); ok {
		return v, true, nil
	}
	col := s.keyColumn(kind)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT pack_json FROM %s WHERE %s = ?", table, col), key)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: select %s: %w", table, err)
	}
	s.hot.Add(hotKey(kind, key), blob)
	return blob, true, nil
}

// PackByteSize returns the byte length of a pack's JSON blob (used by the
// bundle manifest's byte accounting), or (0, false, nil) if absent.
func (s *Store) PackByteSize(ctx context.Context, kind PackKind, key string) (int64, bool, error) {
	if key == "" {
		return 0, false, nil
	}
	blob, ok, err := s.GetPackBytes(ctx, kind, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	return int64(len(blob)), true, nil
}

// DeletePacks removes the named packs from kind's table and the hot
// cache, returning how many rows were deleted.
func (s *Store) DeletePacks(ctx context.Context, kind PackKind, keys ...string) (int, error) {
	table, ok := packTables[kind]
	if !ok || kind == KindManifest {
		return 0, fmt.Errorf("cache: DeletePacks: unsupported kind %q", kind)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	col := s.keyColumn(kind)
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = k
		s.hot.Remove(hotKey(kind, k))
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", table, col, strings.Join(placeholders, ","))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("cache: delete %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgePacks drops every pack of kind, returning how many rows were
// deleted.
func (s *Store) PurgePacks(ctx context.Context, kind PackKind) (int, error) {
	table, ok := packTables[kind]
	if !ok || kind == KindManifest {
		return 0, fmt.Errorf("cache: PurgePacks: unsupported kind %q", kind)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table)
	if err != nil {
		return 0, fmt.Errorf("cache: purge %s: %w", table, err)
	}
	prefix := string(kind) + ":"
	for _, k := range s.hot.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.hot.Remove(k)
		}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PutManifest upserts a bundle manifest keyed by plan_id.
func (s *Store) PutManifest(ctx context.Context, planID, routeKey string, manifest any) error {
	blob, err := codec.CanonicalJSON(manifest)
	if err != nil {
		return fmt.Errorf("cache: marshal manifest: %w", err)
	}
	q := `INSERT INTO manifests (plan_id, route_key, created_at, manifest_json) VALUES (?, ?, ?, ?)
	      ON CONFLICT(plan_id) DO UPDATE SET route_key=excluded.route_key, created_at=excluded.created_at, manifest_json=excluded.manifest_json`
	if _, err := s.db.ExecContext(ctx, q, planID, routeKey, time.Now().UTC().Format(time.RFC3339Nano), blob); err != nil {
		return fmt.Errorf("cache: upsert manifest: %w", err)
	}
	s.hot.Add(hotKey(KindManifest, planID), blob)
	return nil
}

// GetManifestBytes returns the raw manifest JSON blob for planID.
func (s *Store) GetManifestBytes(ctx context.Context, planID string) ([]byte, bool, error) {
	if v, ok := s.hot.Get(hotKey(KindManifest, planID)); ok {
		return v, true, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT manifest_json FROM manifests WHERE plan_id = ?`, planID)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: select manifest: %w", err)
	}
	s.hot.Add(hotKey(KindManifest, planID), blob)
	return blob, true, nil
}

// DB exposes the underlying *sql.DB. The places canonical tables
// (places_local.go, in this package) already use the same handle and
// database file directly.
func (s *Store) DB() *sql.DB { return s.db }
