package places

import (
	"testing"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func TestSubdivideBBox_GridCoversBBox(t *testing.T) {
	bbox := domain.BBox{MinLng: 150.0, MinLat: -28.0, MaxLng: 150.4, MaxLat: -27.7}
	tiles := SubdivideBBox(bbox, 0.2, 64)
	if len(tiles) != 4 { // 2 lng steps x 2 lat steps
		t.Fatalf("got %d tiles, want 4", len(tiles))
	}
	for _, tile := range tiles {
		if tile.BBox.MinLng < bbox.MinLng-1e-9 || tile.BBox.MaxLng > bbox.MaxLng+1e-9 {
			t.Fatalf("tile %+v escapes bbox lng range", tile)
		}
		if tile.BBox.MinLat < bbox.MinLat-1e-9 || tile.BBox.MaxLat > bbox.MaxLat+1e-9 {
			t.Fatalf("tile %+v escapes bbox lat range", tile)
		}
	}
}

func TestSubdivideBBox_CapsAtMaxTiles(t *testing.T) {
	bbox := domain.BBox{MinLng: 140.0, MinLat: -38.0, MaxLng: 150.0, MaxLat: -28.0}
	tiles := SubdivideBBox(bbox, 0.15, 10)
	if len(tiles) != 10 {
		t.Fatalf("got %d tiles, want capped to 10", len(tiles))
	}
}

func TestTileKey_StableAcrossCategoryOrder(t *testing.T) {
	bbox := domain.BBox{MinLng: 150.0, MinLat: -28.0, MaxLng: 150.2, MaxLat: -27.8}
	a := TileKey(bbox, []string{"fuel", "toilets"})
	b := TileKey(bbox, []string{"toilets", "fuel"})
	if a != b {
		t.Fatalf("expected category order to not affect key, got %q vs %q", a, b)
	}
}

func TestTileKey_DiffersByBBox(t *testing.T) {
	a := TileKey(domain.BBox{MinLng: 150.0, MinLat: -28.0, MaxLng: 150.2, MaxLat: -27.8}, nil)
	b := TileKey(domain.BBox{MinLng: 151.0, MinLat: -28.0, MaxLng: 151.2, MaxLat: -27.8}, nil)
	if a == b {
		t.Fatalf("expected different bboxes to produce different keys")
	}
}
