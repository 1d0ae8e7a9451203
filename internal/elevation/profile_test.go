package elevation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
)

func TestWrapper_Profile_ComputesAscentDescent(t *testing.T) {
	elevations := []float64{100, 150, 120, 200}
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req lookupRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := lookupResponse{Results: make([]lookupResult, len(req.Locations))}
		for i := range resp.Results {
			e := elevations[(call+i)%len(elevations)]
			resp.Results[i] = lookupResult{Elevation: &e}
		}
		call += len(req.Locations)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client(), 200)
	wrapper := NewWrapper(client)

	poly := codec.Polyline6Encode([]codec.Point{
		{Lat: -27.0, Lng: 153.0},
		{Lat: -27.5, Lng: 153.0},
		{Lat: -28.0, Lng: 153.0},
	})

	profile, err := wrapper.Profile(t.Context(), poly, 20000)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(profile.Samples) < 2 {
		t.Fatalf("expected at least 2 samples, got %d", len(profile.Samples))
	}
	if profile.TotalAscentM <= 0 && profile.TotalDescentM <= 0 {
		t.Fatalf("expected nonzero ascent or descent, got ascent=%v descent=%v", profile.TotalAscentM, profile.TotalDescentM)
	}
	if profile.MaxM < profile.MinM {
		t.Fatalf("max %v should not be less than min %v", profile.MaxM, profile.MinM)
	}
}

func TestWrapper_Profile_RejectsShortPolyline(t *testing.T) {
	client := NewClient("http://example.invalid", nil, 200)
	wrapper := NewWrapper(client)
	poly := codec.Polyline6Encode([]codec.Point{{Lat: -27.0, Lng: 153.0}})
	_, err := wrapper.Profile(t.Context(), poly, 500)
	if err == nil {
		t.Fatalf("expected an error for a single-point polyline")
	}
}
