package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundle"
	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/corridor"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
	"github.com/ecodiatate/roam-bundle-engine/internal/overlay"
	"github.com/ecodiatate/roam-bundle-engine/internal/places"
	"github.com/ecodiatate/roam-bundle-engine/internal/routing"
)

// fakeEdgeStore is an in-memory edges.Store stand-in; the orchestrator's
// fan-out never needs a real SQLite/Postgres-backed corridor for this
// test, just the interface contract.
type fakeEdgeStore struct {
	rows []domain.EdgeRow
}

func (f *fakeEdgeStore) QueryBBox(ctx context.Context, bbox domain.BBox, limit int) ([]domain.EdgeRow, error) {
	return f.rows, nil
}
func (f *fakeEdgeStore) Count(ctx context.Context) (int64, error) { return int64(len(f.rows)), nil }
func (f *fakeEdgeStore) Close() error                             { return nil }

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), 16)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	routeGeom := codec.Polyline6Encode([]codec.Point{
		{Lat: -27.47, Lng: 153.02},
		{Lat: -27.60, Lng: 153.10},
	})
	osrmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "Ok",
			"routes": []map[string]any{{
				"distance": 15000.0,
				"duration": 1200.0,
				"geometry": routeGeom,
				"legs":     []map[string]any{{"distance": 15000.0, "duration": 1200.0, "steps": []map[string]any{}}},
			}},
		})
	}))
	t.Cleanup(osrmSrv.Close)
	routingClient := routing.NewClient(osrmSrv.URL, "driving", osrmSrv.Client(), "routing.v1")
	routingSvc := routing.NewService(store, routingClient)

	edgeStore := &fakeEdgeStore{rows: []domain.EdgeRow{
		{ID: 1, FromID: 10, ToID: 11, FromLat: -27.47, FromLng: 153.02, ToLat: -27.60, ToLng: 153.10, DistM: 15000, CostS: 1200},
	}}
	corridorExt := corridor.New(store, edgeStore, "corridor.v1")

	overpassSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	t.Cleanup(overpassSrv.Close)
	overpassClient := places.NewOverpassClient(overpassSrv.URL, overpassSrv.Client(), 5.0, 0.1, 1)
	remotePool := places.NewRemotePool(nil)
	placesEngine := places.NewEngine(store, remotePool, overpassClient, places.EngineConfig{
		AlgoVersion:         "places.v1",
		TileStepDeg:         0.15,
		MaxTiles:            8,
		HardCap:             100,
		LocalSatisfyRatio:   0.7,
		TileTTLS:            3600,
		TimeBudgetS:         5,
		MaxOverpassPerReq:   4,
		SampleIntervalKmDef: 8,
		BufferKmDef:         2,
	})

	overlaySvc := overlay.NewService(store, http.DefaultClient, nil, nil, "traffic.v1", "hazards.v1", 120, 5*time.Second)

	assembler := bundle.New(store)

	return New(routingSvc, corridorExt, placesEngine, overlaySvc, assembler, 15000, 350000)
}

func TestOrchestrator_BuildBundle_AssemblesManifestFromFanout(t *testing.T) {
	orch := newTestOrchestrator(t)

	req := BuildRequest{
		PlanID: "plan1",
		Nav: domain.NavRequest{
			Profile: "driving",
			Stops: []domain.Stop{
				{Type: domain.StopStart, Lat: -27.47, Lng: 153.02},
				{Type: domain.StopEnd, Lat: -27.60, Lng: 153.10},
			},
		},
	}

	manifest, err := orch.BuildBundle(t.Context(), req)
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	if manifest.PlanID != "plan1" {
		t.Errorf("plan id = %q, want plan1", manifest.PlanID)
	}
	for _, want := range []string{"navpack", "corridor", "places", "traffic", "hazards"} {
		if manifest.Assets[want].Status != domain.AssetReady {
			t.Errorf("asset %q status = %v, want ready", want, manifest.Assets[want].Status)
		}
	}

	zipResult, err := orch.DownloadBundle(t.Context(), "plan1")
	if err != nil {
		t.Fatalf("DownloadBundle: %v", err)
	}
	if len(zipResult.ZipBytes) == 0 {
		t.Errorf("expected a non-empty zip archive")
	}
}

func TestOrchestrator_BuildBundle_RejectsMissingPlanID(t *testing.T) {
	orch := newTestOrchestrator(t)
	req := BuildRequest{Nav: domain.NavRequest{Stops: []domain.Stop{
		{Lat: -27.0, Lng: 153.0}, {Lat: -27.1, Lng: 153.1},
	}}}
	if _, err := orch.BuildBundle(t.Context(), req); err == nil {
		t.Fatalf("expected an error when plan_id is missing")
	}
}

func TestOrchestrator_BuildBundle_SkipsPOIAndOverlaysWhenRequested(t *testing.T) {
	orch := newTestOrchestrator(t)
	req := BuildRequest{
		PlanID: "plan2",
		Nav: domain.NavRequest{
			Profile: "driving",
			Stops: []domain.Stop{
				{Type: domain.StopStart, Lat: -27.47, Lng: 153.02},
				{Type: domain.StopEnd, Lat: -27.60, Lng: 153.10},
			},
		},
		SkipPOI:      true,
		SkipOverlays: true,
	}
	manifest, err := orch.BuildBundle(t.Context(), req)
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	for _, skipped := range []string{"places", "traffic", "hazards"} {
		if manifest.Assets[skipped].Status == domain.AssetReady {
			t.Errorf("asset %q should not be ready when skipped", skipped)
		}
	}
	if manifest.Assets["navpack"].Status != domain.AssetReady || manifest.Assets["corridor"].Status != domain.AssetReady {
		t.Errorf("navpack/corridor should still be ready: %+v", manifest.Assets)
	}
}
