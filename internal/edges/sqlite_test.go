package edges

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func seedEdgesDB(t *testing.T, withRTree bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edges.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	schema := `CREATE TABLE edges (
		id INTEGER PRIMARY KEY, from_id INTEGER, to_id INTEGER,
		from_lat REAL, from_lng REAL, to_lat REAL, to_lng REAL,
		dist_m REAL, cost_s REAL, toll INTEGER, ferry INTEGER, unsealed INTEGER,
		highway TEXT, name TEXT, osm_way_id INTEGER
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO edges VALUES (1,10,11,-27.40,153.00,-27.41,153.01,120,15,0,0,0,'primary','Test Rd',999)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO edges VALUES (2,20,21,10.0,10.0,10.01,10.01,120,15,0,0,0,'primary','Far Rd',998)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return path
}

func TestSQLiteStore_RangeScanFallback(t *testing.T) {
	path := seedEdgesDB(t, false)
	s, err := openSQLite(path)
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	defer s.Close()

	bbox := domain.BBox{MinLat: -27.5, MaxLat: -27.3, MinLng: 152.9, MaxLng: 153.1}
	rows, err := s.QueryBBox(context.Background(), bbox, 0)
	if err != nil {
		t.Fatalf("QueryBBox: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 1 {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("Count=%d want 2", n)
	}
}
