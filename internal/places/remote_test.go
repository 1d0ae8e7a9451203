package places

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/ecodiatate/roam-bundle-engine/internal/cache/redisstore"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func newMiniPool(t *testing.T) *RemotePool {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := redisstore.New(ctx, mr.Addr(), nil)
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return NewRemotePool(rc)
}

func TestRemotePool_NilClientDegradesToMiss(t *testing.T) {
	p := NewRemotePool(nil)
	ctx := t.Context()

	if items, err := p.Get(ctx, []string{"osm:node:1"}); err != nil || items != nil {
		t.Errorf("Get on nil client = (%v, %v), want (nil, nil)", items, err)
	}
	if err := p.Put(ctx, []domain.PlaceItem{{ID: "osm:node:1"}}); err != nil {
		t.Errorf("Put on nil client: %v", err)
	}
	if items, err := p.ItemsNearPoints(ctx, [][2]float64{{-27.5, 153.0}}); err != nil || items != nil {
		t.Errorf("ItemsNearPoints on nil client = (%v, %v), want (nil, nil)", items, err)
	}
}

func TestRemotePool_PutGetRoundTrip(t *testing.T) {
	p := newMiniPool(t)
	ctx := t.Context()

	items := []domain.PlaceItem{
		{ID: "osm:node:1", Name: "Roadhouse", Lat: -27.52, Lng: 152.5, Category: domain.CategoryFuel},
		{ID: "osm:node:2", Name: "Rest Stop", Lat: -27.53, Lng: 152.6, Category: domain.CategoryRestArea},
	}
	if err := p.Put(ctx, items); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := p.Get(ctx, []string{"osm:node:1", "osm:node:2", "osm:node:999"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2 (missing key filtered)", len(got))
	}
}

func TestRemotePool_ItemsNearPointsFindsCellNeighbours(t *testing.T) {
	p := newMiniPool(t)
	ctx := t.Context()

	if err := p.Put(ctx, []domain.PlaceItem{
		{ID: "osm:node:1", Name: "Roadhouse", Lat: -27.52, Lng: 152.5, Category: domain.CategoryFuel},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// query from the item's own location: its cell is in the disk
	near, err := p.ItemsNearPoints(ctx, [][2]float64{{-27.52, 152.5}})
	if err != nil {
		t.Fatalf("ItemsNearPoints: %v", err)
	}
	if len(near) != 1 || near[0].ID != "osm:node:1" {
		t.Errorf("near = %v, want the roadhouse", near)
	}

	// a point hundreds of km away shares no cell with the item
	far, err := p.ItemsNearPoints(ctx, [][2]float64{{-31.0, 150.0}})
	if err != nil {
		t.Fatalf("ItemsNearPoints (far): %v", err)
	}
	if len(far) != 0 {
		t.Errorf("far = %v, want no items", far)
	}
}

func TestRemotePool_IndexTileRoundTrip(t *testing.T) {
	p := newMiniPool(t)
	ctx := t.Context()

	item := domain.PlaceItem{ID: "osm:node:7", Name: "Bakery", Lat: -27.5, Lng: 153.0, Category: domain.CategoryBakery}
	if err := p.Put(ctx, []domain.PlaceItem{item}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := p.IndexTile(ctx, "tile:a", []string{item.ID}, time.Hour); err != nil {
		t.Fatalf("IndexTile: %v", err)
	}

	got, err := p.ItemsForTile(ctx, "tile:a")
	if err != nil {
		t.Fatalf("ItemsForTile: %v", err)
	}
	if len(got) != 1 || got[0].ID != item.ID {
		t.Errorf("ItemsForTile = %v, want the bakery", got)
	}
	if got, err := p.ItemsForTile(ctx, "tile:never-seen"); err != nil || got != nil {
		t.Errorf("unknown tile = (%v, %v), want (nil, nil)", got, err)
	}
}
