package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func TestClient_Route_HappyPath(t *testing.T) {
	legGeom := codec.Polyline6Encode([]codec.Point{{Lat: -27.47, Lng: 153.02}, {Lat: -27.50, Lng: 153.05}})
	stepGeom := codec.Polyline6Encode([]codec.Point{{Lat: -27.50, Lng: 153.05}, {Lat: -27.52, Lng: 153.08}})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := osrmResponse{
			Code: "Ok",
			Routes: []osrmRoute{{
				Distance: 12000,
				Duration: 900,
				Geometry: legGeom,
				Legs: []osrmLeg{{
					Distance: 12000,
					Duration: 900,
					Steps: []osrmStep{
						{Distance: 6000, Duration: 450, Geometry: legGeom, Name: "Bruce Hwy", Maneuver: osrmManeuver{Type: "depart", Modifier: ""}},
						{Distance: 6000, Duration: 450, Geometry: stepGeom, Name: "Bruce Hwy", Maneuver: osrmManeuver{Type: "turn", Modifier: "left"}},
					},
				}},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "driving", srv.Client(), "routing.v1")
	req := domain.NavRequest{
		Profile: "driving",
		Stops: []domain.Stop{
			{Type: domain.StopStart, Lat: -27.47, Lng: 153.02},
			{Type: domain.StopEnd, Lat: -27.52, Lng: 153.08},
		},
	}

	route, err := c.Route(t.Context(), req)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.DistanceM != 12000 {
		t.Fatalf("distance = %v, want 12000", route.DistanceM)
	}
	if route.Provider != "osrm" {
		t.Fatalf("provider = %q, want osrm", route.Provider)
	}
	if len(route.Legs) != 1 || len(route.Legs[0].Steps) != 2 {
		t.Fatalf("unexpected legs/steps shape: %+v", route.Legs)
	}
	if route.Legs[0].Steps[1].Maneuver.Modifier != domain.ModifierLeft {
		t.Fatalf("modifier = %q, want left", route.Legs[0].Steps[1].Maneuver.Modifier)
	}
	if route.RouteKey == "" {
		t.Fatalf("expected a non-empty route key")
	}
}

func TestClient_Route_RejectsSingleStop(t *testing.T) {
	c := NewClient("http://example.invalid", "driving", nil, "routing.v1")
	_, err := c.Route(t.Context(), domain.NavRequest{Stops: []domain.Stop{{Lat: 1, Lng: 2}}})
	if err == nil {
		t.Fatalf("expected an error for a single-stop request")
	}
}

func TestConcatStepGeometries_DropsDuplicateJunctionPoint(t *testing.T) {
	a := codec.Polyline6Encode([]codec.Point{{Lat: -27.0, Lng: 153.0}, {Lat: -27.1, Lng: 153.1}})
	b := codec.Polyline6Encode([]codec.Point{{Lat: -27.1, Lng: 153.1}, {Lat: -27.2, Lng: 153.2}})

	steps := []domain.NavStep{{Geometry: a}, {Geometry: b}}
	merged := concatStepGeometries(steps)
	pts := codec.Polyline6Decode(merged)
	if len(pts) != 3 {
		t.Fatalf("got %d points, want 3 (duplicate junction point dropped)", len(pts))
	}
}
