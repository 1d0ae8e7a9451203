package places

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func TestSatisfied(t *testing.T) {
	if !satisfied(7, 10, 0.70) {
		t.Fatalf("7/10 should satisfy a 0.70 ratio")
	}
	if satisfied(6, 10, 0.70) {
		t.Fatalf("6/10 should not satisfy a 0.70 ratio")
	}
	if !satisfied(0, 0, 0.70) {
		t.Fatalf("a zero limit should always be considered satisfied")
	}
}

func TestRequestBBox_PrefersExplicitBBox(t *testing.T) {
	bbox := domain.BBox{MinLng: 150, MinLat: -28, MaxLng: 150.5, MaxLat: -27.5}
	req := domain.PlacesRequest{BBox: &bbox}
	got, err := requestBBox(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != bbox {
		t.Fatalf("got %+v, want %+v", got, bbox)
	}
}

func TestRequestBBox_DerivesFromRadius(t *testing.T) {
	lat, lng, radius := -27.5, 153.0, 5000.0
	req := domain.PlacesRequest{Lat: &lat, Lng: &lng, RadiusM: &radius}
	got, err := requestBBox(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MinLat >= lat || got.MaxLat <= lat || got.MinLng >= lng || got.MaxLng <= lng {
		t.Fatalf("expected the point to lie inside its own derived bbox: %+v", got)
	}
}

func TestRequestBBox_RejectsEmptyRequest(t *testing.T) {
	if _, err := requestBBox(domain.PlacesRequest{}); err == nil {
		t.Fatalf("expected an error for a request with neither bbox nor lat/lng")
	}
}

func newCorridorTestEngine(t *testing.T, requests *int32) *Engine {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), 16)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","id":"node/101","geometry":{"type":"Point","coordinates":[152.5,-27.52]},"properties":{"amenity":"fuel","name":"Warrego Hwy Roadhouse"}}
		]}`))
	}))
	t.Cleanup(srv.Close)

	return NewEngine(store, NewRemotePool(nil), NewOverpassClient(srv.URL, srv.Client(), 5, 0.05, 1), EngineConfig{
		AlgoVersion:         "places.v1",
		TileStepDeg:         0.5,
		MaxTiles:            16,
		HardCap:             100,
		LocalSatisfyRatio:   0.7,
		TileTTLS:            3600,
		TimeBudgetS:         5,
		MaxOverpassPerReq:   16,
		SampleIntervalKmDef: 8,
		BufferKmDef:         5,
	})
}

func TestSearchCorridorPolyline_IsDeterministicAndCached(t *testing.T) {
	var requests int32
	e := newCorridorTestEngine(t, &requests)
	poly := codec.Polyline6Encode([]codec.Point{
		{Lat: -27.47, Lng: 153.02},
		{Lat: -27.52, Lng: 152.50},
		{Lat: -27.56, Lng: 151.95},
	})

	first, err := e.SearchCorridorPolyline(t.Context(), poly, 5, []string{"fuel"}, 50)
	if err != nil {
		t.Fatalf("SearchCorridorPolyline (1st): %v", err)
	}
	if len(first.Items) != 1 {
		t.Fatalf("items = %d, want the roadhouse on the route", len(first.Items))
	}
	if first.Items[0].ID != "osm:node:101" {
		t.Errorf("item id = %q, want osm:node:101", first.Items[0].ID)
	}

	fetchesAfterFirst := atomic.LoadInt32(&requests)
	if fetchesAfterFirst != 1 {
		t.Errorf("external requests = %d, want a single around-polyline query", fetchesAfterFirst)
	}
	second, err := e.SearchCorridorPolyline(t.Context(), poly, 5, []string{"fuel"}, 50)
	if err != nil {
		t.Fatalf("SearchCorridorPolyline (2nd): %v", err)
	}
	if second.PlacesKey != first.PlacesKey {
		t.Errorf("keys differ across identical searches: %s vs %s", second.PlacesKey, first.PlacesKey)
	}
	if atomic.LoadInt32(&requests) != fetchesAfterFirst {
		t.Errorf("second identical search reached the external API")
	}
	if len(second.Items) != len(first.Items) {
		t.Errorf("item sets differ across identical searches")
	}
}

func TestSearchCorridorPolyline_RejectsItemsOutsideBuffer(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), 16)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	// one station on the route, one ~55km south of it
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","id":"node/1","geometry":{"type":"Point","coordinates":[152.5,-27.52]},"properties":{"amenity":"fuel","name":"On Route"}},
			{"type":"Feature","id":"node/2","geometry":{"type":"Point","coordinates":[152.5,-28.02]},"properties":{"amenity":"fuel","name":"Far South"}}
		]}`))
	}))
	t.Cleanup(srv.Close)

	e := NewEngine(store, NewRemotePool(nil), NewOverpassClient(srv.URL, srv.Client(), 5, 0.05, 1), EngineConfig{
		AlgoVersion: "places.v1", TileStepDeg: 0.5, MaxTiles: 16, HardCap: 100,
		LocalSatisfyRatio: 0.7, TileTTLS: 3600, TimeBudgetS: 5, MaxOverpassPerReq: 16,
		SampleIntervalKmDef: 8, BufferKmDef: 5,
	})
	poly := codec.Polyline6Encode([]codec.Point{
		{Lat: -27.47, Lng: 153.02},
		{Lat: -27.52, Lng: 152.50},
		{Lat: -27.56, Lng: 151.95},
	})
	pack, err := e.SearchCorridorPolyline(t.Context(), poly, 5, []string{"fuel"}, 50)
	if err != nil {
		t.Fatalf("SearchCorridorPolyline: %v", err)
	}
	for _, item := range pack.Items {
		if item.Name == "Far South" {
			t.Errorf("item 55km off the route survived the buffer filter")
		}
	}
	if len(pack.Items) != 1 {
		t.Errorf("items = %d, want only the on-route station", len(pack.Items))
	}
}

func TestSearchCorridorPolyline_LongRouteIsOneAroundQuery(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), 16)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var requests int32
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		raw, _ := io.ReadAll(r.Body)
		lastBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	t.Cleanup(srv.Close)

	e := NewEngine(store, NewRemotePool(nil), NewOverpassClient(srv.URL, srv.Client(), 5, 0.05, 1), EngineConfig{
		AlgoVersion: "places.v1", TileStepDeg: 0.15, MaxTiles: 64, HardCap: 100,
		LocalSatisfyRatio: 0.7, TileTTLS: 3600, TimeBudgetS: 5, MaxOverpassPerReq: 12,
		SampleIntervalKmDef: 8, BufferKmDef: 5,
	})

	// Brisbane to Longreach, ~1000km west; a bbox grid at 0.15 degrees
	// would need hundreds of tiles here.
	pts := make([]codec.Point, 0, 12)
	for i := 0; i <= 11; i++ {
		pts = append(pts, codec.Point{Lat: -27.47 + 0.35*float64(i)/11, Lng: 153.02 - 8.7*float64(i)/11})
	}
	poly := codec.Polyline6Encode(pts)

	if _, err := e.SearchCorridorPolyline(t.Context(), poly, 5, []string{"fuel"}, 50); err != nil {
		t.Fatalf("SearchCorridorPolyline: %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Fatalf("external requests = %d, want exactly 1 regardless of route length", n)
	}
	if !strings.Contains(lastBody, "around:5000") {
		t.Errorf("query body is not an around-polyline query:\n%s", lastBody)
	}
}
