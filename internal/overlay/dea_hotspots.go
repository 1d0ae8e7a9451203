package overlay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// deaHotspotSource wraps Digital Earth Australia's satellite hotspot feed
// (GeoJSON points, one per detected thermal anomaly). It is national rather
// than per-state, so fanout.go polls it once per request regardless of how
// many states a query's bbox overlaps.
type deaHotspotSource struct {
	url     string
	enabled bool
}

func NewDEAHotspotSource(url string, enabled bool) HazardSource {
	return &deaHotspotSource{url: url, enabled: enabled}
}

func (s *deaHotspotSource) Name() string     { return "dea_hotspots" }
func (s *deaHotspotSource) State() StateCode { return "" }
func (s *deaHotspotSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *deaHotspotSource) Fetch(ctx context.Context, client *http.Client) ([]byte, error) {
	return doGet(ctx, client, s.url, nil)
}

func (s *deaHotspotSource) Parse(payload []byte, now time.Time) ([]domain.HazardEvent, error) {
	fc, err := geojson.UnmarshalFeatureCollection(payload)
	if err != nil {
		return nil, fmt.Errorf("dea_hotspots: decode geojson: %w", err)
	}
	out := make([]domain.HazardEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		ev, ok := deaFeatureToHazard(f, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func deaFeatureToHazard(f *geojson.Feature, now time.Time) (domain.HazardEvent, bool) {
	props := f.Properties
	detectedAt := propTimeString(props, "datetime", "solar_day", "obstime")
	// Hotspot detections age out after 24h; older ones are stale satellite
	// passes and shouldn't surface as current hazards.
	if t, ok := parseTime(detectedAt); ok && now.Sub(t) > 24*time.Hour {
		return domain.HazardEvent{}, false
	}
	satellite := propString(props, "satellite", "sensor")
	confidence := propString(props, "confidence")
	headline := "Satellite hotspot detection"
	if satellite != "" {
		headline = fmt.Sprintf("Satellite hotspot detection (%s)", satellite)
	}
	var bbox *domain.BBox
	var geomVal any
	if f.Geometry != nil {
		geomVal = f.Geometry
		if b, ok := geojsonGeometryBBox(f.Geometry); ok {
			bbox = &b
		}
	}
	upstreamID := propString(props, "id", "hotspot_id")
	sev := domain.HazardSevUnknown
	if confidence == "high" {
		sev = domain.HazardSevModerate
	}
	return domain.HazardEvent{
		ID:                StableID("dea", "dea_hotspots", upstreamID, headline, derefStr(detectedAt), geomSignature(geomVal)),
		Source:            "dea",
		Kind:              domain.HazardFire,
		Severity:          sev,
		Headline:          headline,
		Description:       fmt.Sprintf("confidence=%s", confidence),
		IssuedAt:          detectedAt,
		StartAt:           detectedAt,
		Geometry:          geomVal,
		BBox:              bbox,
		Region:            "national",
		Raw:               f,
		Urgency:           domain.CapUrgencyUnknown,
		Certainty:         domain.CapCertaintyUnknown,
		EffectivePriority: EffectivePriority(sev, domain.CapUrgencyUnknown, domain.CapCertaintyUnknown),
	}, true
}
