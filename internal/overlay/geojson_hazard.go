package overlay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// geojsonHazardSource handles agencies (VIC Emergency) that publish current
// incidents as a GeoJSON FeatureCollection rather than CAP-AU XML.
type geojsonHazardSource struct {
	name, url string
	state     StateCode
	enabled   bool
}

func NewGeoJSONHazardSource(name, url string, state StateCode, enabled bool) HazardSource {
	return &geojsonHazardSource{name: name, url: url, state: state, enabled: enabled}
}

func (s *geojsonHazardSource) Name() string     { return s.name }
func (s *geojsonHazardSource) State() StateCode { return s.state }
func (s *geojsonHazardSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *geojsonHazardSource) Fetch(ctx context.Context, client *http.Client) ([]byte, error) {
	return doGet(ctx, client, s.url, nil)
}

func (s *geojsonHazardSource) Parse(payload []byte, now time.Time) ([]domain.HazardEvent, error) {
	fc, err := geojson.UnmarshalFeatureCollection(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: decode geojson: %w", s.name, err)
	}
	out := make([]domain.HazardEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		ev, ok := geojsonFeatureToHazard(s.name, string(s.state), f, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func geojsonFeatureToHazard(source, region string, f *geojson.Feature, now time.Time) (domain.HazardEvent, bool) {
	props := f.Properties
	headline := propString(props, "headline", "title", "name")
	desc := propString(props, "description", "resourceDescription")
	endAt := propTimeString(props, "expires", "end_time")
	if IsExpired(endAt, now) {
		return domain.HazardEvent{}, false
	}
	issuedAt := propTimeString(props, "updated", "created", "start_time")
	sev := NormalizeHazardSeverity(propString(props, "severity", "category1", "status"))
	kind := classifyHazardKeyword(headline, desc)
	if t := propString(props, "type", "category"); t != "" {
		if mapped, ok := mapVendorHazardCategory(t); ok {
			kind = mapped
		}
	}
	var bbox *domain.BBox
	var geomVal any
	if f.Geometry != nil {
		geomVal = f.Geometry
		if b, ok := geojsonGeometryBBox(f.Geometry); ok {
			bbox = &b
		}
	}
	upstreamID := propString(props, "id", "guid", "objectid")
	urg := domain.CapUrgencyUnknown
	cer := domain.CapCertaintyUnknown
	return domain.HazardEvent{
		ID:                StableID(source, source, upstreamID, headline, derefStr(issuedAt), geomSignature(geomVal)),
		Source:            source,
		Kind:              kind,
		Severity:          sev,
		Headline:          headline,
		Description:       desc,
		IssuedAt:          issuedAt,
		StartAt:           issuedAt,
		EndAt:             endAt,
		Geometry:          geomVal,
		BBox:              bbox,
		Region:            region,
		Raw:               f,
		Urgency:           urg,
		Certainty:         cer,
		EffectivePriority: EffectivePriority(sev, urg, cer),
	}, true
}
