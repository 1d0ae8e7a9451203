package cache

import (
	"context"
	"testing"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func TestPlacesLocal_UpsertAndQueryBBox(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []domain.PlaceItem{
		{ID: "osm:node:1", Name: "Servo", Lat: -27.40, Lng: 153.00, Category: domain.CategoryFuel},
		{ID: "osm:node:2", Name: "Cafe", Lat: -27.41, Lng: 153.01, Category: domain.CategoryCafe},
		{ID: "osm:node:3", Name: "Far Away", Lat: 10.0, Lng: 10.0, Category: domain.CategoryFuel},
	}
	if err := s.UpsertPlacesItems(ctx, items); err != nil {
		t.Fatalf("UpsertPlacesItems: %v", err)
	}

	bbox := domain.BBox{MinLat: -27.5, MaxLat: -27.3, MinLng: 152.9, MaxLng: 153.1}
	got, err := s.QueryPlacesBBox(ctx, bbox, nil, 0)
	if err != nil {
		t.Fatalf("QueryPlacesBBox: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}

	fuelOnly, err := s.QueryPlacesBBox(ctx, bbox, []string{"fuel"}, 0)
	if err != nil {
		t.Fatalf("QueryPlacesBBox filtered: %v", err)
	}
	if len(fuelOnly) != 1 || fuelOnly[0].ID != "osm:node:1" {
		t.Fatalf("unexpected filtered result: %+v", fuelOnly)
	}
}

func TestPlacesLocal_UpsertPreservesNameOnBlankUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPlacesItems(ctx, []domain.PlaceItem{{ID: "osm:node:1", Name: "Servo", Lat: 1, Lng: 1, Category: domain.CategoryFuel}}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertPlacesItems(ctx, []domain.PlaceItem{{ID: "osm:node:1", Name: "", Lat: 1.001, Lng: 1.001, Category: ""}}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.QueryPlacesBBox(ctx, domain.BBox{MinLat: 0, MaxLat: 2, MinLng: 0, MaxLng: 2}, nil, 0)
	if err != nil {
		t.Fatalf("QueryPlacesBBox: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Servo" || got[0].Category != domain.CategoryFuel {
		t.Fatalf("expected name/category preserved, got %+v", got)
	}
}

func TestTileFreshness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fresh, err := s.TileIsFresh(ctx, "tile:0.15:1,1,2,2", 3600)
	if err != nil {
		t.Fatalf("TileIsFresh: %v", err)
	}
	if fresh {
		t.Fatal("expected unseen tile to be stale")
	}

	bbox := domain.BBox{MinLat: 1, MinLng: 1, MaxLat: 2, MaxLng: 2}
	if err := s.MarkTileFetched(ctx, "tile:0.15:1,1,2,2", bbox, []string{"fuel"}, 5); err != nil {
		t.Fatalf("MarkTileFetched: %v", err)
	}
	fresh, err = s.TileIsFresh(ctx, "tile:0.15:1,1,2,2", 3600)
	if err != nil {
		t.Fatalf("TileIsFresh after mark: %v", err)
	}
	if !fresh {
		t.Fatal("expected freshly marked tile to be fresh")
	}
}
