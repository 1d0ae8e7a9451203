package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetPack_HappyPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pack := domain.CorridorGraphPack{
		CorridorKey: "ck1",
		RouteKey:    "rk1",
		Profile:     "driving",
		AlgoVersion: "corridor.v1",
		Nodes:       []domain.CorridorNode{{ID: 1, Lat: -27.4, Lng: 153.0}},
	}
	if err := s.PutPack(ctx, KindCorridor, "ck1", "corridor.v1", pack); err != nil {
		t.Fatalf("PutPack: %v", err)
	}

	blob, ok, err := s.GetPackBytes(ctx, KindCorridor, "ck1")
	if err != nil {
		t.Fatalf("GetPackBytes: %v", err)
	}
	if !ok {
		t.Fatal("expected pack to be found")
	}
	if len(blob) == 0 {
		t.Fatal("expected non-empty blob")
	}

	size, ok, err := s.PackByteSize(ctx, KindCorridor, "ck1")
	if err != nil {
		t.Fatalf("PackByteSize: %v", err)
	}
	if !ok || size != int64(len(blob)) {
		t.Fatalf("PackByteSize=%d ok=%v want=%d", size, ok, len(blob))
	}

	if _, ok, err := s.GetPackBytes(ctx, KindCorridor, "missing"); err != nil || ok {
		t.Fatalf("expected miss for unknown key, got ok=%v err=%v", ok, err)
	}
}

func TestPutPack_OverwritesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutPack(ctx, KindNav, "rk1", "bundle.v1", domain.NavRoute{RouteKey: "rk1", DistanceM: 100}); err != nil {
		t.Fatalf("PutPack 1: %v", err)
	}
	if err := s.PutPack(ctx, KindNav, "rk1", "bundle.v1", domain.NavRoute{RouteKey: "rk1", DistanceM: 200}); err != nil {
		t.Fatalf("PutPack 2: %v", err)
	}

	blob, ok, err := s.GetPackBytes(ctx, KindNav, "rk1")
	if err != nil || !ok {
		t.Fatalf("GetPackBytes: ok=%v err=%v", ok, err)
	}
	if !contains(blob, []byte(`"distance_m":200`)) {
		t.Fatalf("expected overwritten value in blob, got %s", blob)
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := domain.OfflineBundleManifest{
		PlanID:   "plan1",
		RouteKey: "rk1",
		Assets:   map[string]domain.AssetRef{"navpack": {Key: "rk1", Status: domain.AssetReady}},
	}
	if err := s.PutManifest(ctx, "plan1", "rk1", m); err != nil {
		t.Fatalf("PutManifest: %v", err)
	}
	blob, ok, err := s.GetManifestBytes(ctx, "plan1")
	if err != nil || !ok || len(blob) == 0 {
		t.Fatalf("GetManifestBytes: ok=%v err=%v len=%d", ok, err, len(blob))
	}
}

func contains(haystack, needle []byte) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
