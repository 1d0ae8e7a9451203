package codec

import (
	"math"
	"sort"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// roundN rounds v to n decimal places using the same half-away-from-zero
// rule as round6 in polyline6.go, but parameterised for 6dp coordinate
// normalisation independent of polyline scale.
func roundN(v float64, n int) float64 {
	scale := math.Pow(10, float64(n))
	if v >= 0 {
		return math.Floor(v*scale+0.5) / scale
	}
	return math.Ceil(v*scale-0.5) / scale
}

// NormalizeNavRequest rounds every stop's lat/lng to 6 decimal places and
// defaults an empty stop type to "poi", so that requests differing only in
// float noise or an omitted type collapse onto the same route_key.
func NormalizeNavRequest(req domain.NavRequest) domain.NavRequest {
	out := req
	out.Stops = make([]domain.Stop, len(req.Stops))
	for i, s := range req.Stops {
		ns := s
		ns.Lat = roundN(s.Lat, 6)
		ns.Lng = roundN(s.Lng, 6)
		if ns.Type == "" {
			ns.Type = domain.StopPOI
		}
		out.Stops[i] = ns
	}
	if len(req.Avoid) > 0 {
		avoid := append([]string(nil), req.Avoid...)
		sort.Strings(avoid)
		out.Avoid = avoid
	}
	return out
}

// RouteKey is the content-address key for a normalised navigation request,
// hashing {algo_version, req}.
func RouteKey(req domain.NavRequest, algoVersion string) (string, error) {
	norm := NormalizeNavRequest(req)
	payload := map[string]any{
		"algo_version": algoVersion,
		"req":          norm,
	}
	return ContentHashValue(payload)
}

// CorridorKey mixes the route_key with the corridor-extraction parameters:
// buffer_m, max_edges, profile, algo_version.
func CorridorKey(routeKey string, bufferM, maxEdges int, profile, algoVersion string) (string, error) {
	payload := map[string]any{
		"route_key":    routeKey,
		"buffer_m":     bufferM,
		"max_edges":    maxEdges,
		"profile":      profile,
		"algo_version": algoVersion,
	}
	return ContentHashValue(payload)
}

// PlacesKey hashes a normalised places request together with the POI
// algorithm version.
func PlacesKey(req domain.PlacesRequest, algoVersion string) (string, error) {
	categories := append([]string(nil), req.Categories...)
	sort.Strings(categories)
	norm := req
	norm.Categories = categories
	if norm.Lat != nil {
		r := roundN(*norm.Lat, 6)
		norm.Lat = &r
	}
	if norm.Lng != nil {
		r := roundN(*norm.Lng, 6)
		norm.Lng = &r
	}
	payload := map[string]any{
		"algo_version": algoVersion,
		"req":          norm,
	}
	return ContentHashValue(payload)
}

// CorridorPlacesKey mixes {sha256(polyline), buffer_km, sorted(categories),
// limit, algo_version}. The polyline is hashed first to bound the key's
// input size regardless of route length.
func CorridorPlacesKey(polyline string, bufferKm float64, categories []string, limit int, algoVersion string) (string, error) {
	polyHash := ContentHash([]byte(polyline))
	cats := append([]string(nil), categories...)
	sort.Strings(cats)
	payload := map[string]any{
		"algo_version":    algoVersion,
		"polyline_sha256": polyHash,
		"buffer_km":       bufferKm,
		"categories":      cats,
		"limit":           limit,
	}
	return ContentHashValue(payload)
}

// TrafficKey hashes the traffic overlay request: the bbox covered, the set
// of dispatched states, and the traffic algorithm version.
func TrafficKey(bbox domain.BBox, activeStates []string, algoVersion string) (string, error) {
	states := append([]string(nil), activeStates...)
	sort.Strings(states)
	payload := map[string]any{
		"algo_version":  algoVersion,
		"bbox":          bbox,
		"active_states": states,
	}
	return ContentHashValue(payload)
}

// HazardsKey hashes the hazards overlay request: the bbox covered, the set
// of dispatched states, and the hazards algorithm version.
func HazardsKey(bbox domain.BBox, activeStates []string, algoVersion string) (string, error) {
	states := append([]string(nil), activeStates...)
	sort.Strings(states)
	payload := map[string]any{
		"algo_version":  algoVersion,
		"bbox":          bbox,
		"active_states": states,
	}
	return ContentHashValue(payload)
}
