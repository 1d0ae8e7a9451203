package overlay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// geojsonTrafficSource handles jurisdictions (NSW Live Traffic) that publish
// events as a plain GeoJSON FeatureCollection, decoded with paulmach/go.geojson
// rather than hand-rolled structs.
type geojsonTrafficSource struct {
	name, url string
	state     StateCode
	enabled   bool
	headerKey string
	headerVal string
}

func NewGeoJSONTrafficSource(name, url string, state StateCode, enabled bool, headerKey, headerVal string) TrafficSource {
	return &geojsonTrafficSource{name: name, url: url, state: state, enabled: enabled, headerKey: headerKey, headerVal: headerVal}
}

func (s *geojsonTrafficSource) Name() string     { return s.name }
func (s *geojsonTrafficSource) State() StateCode { return s.state }
func (s *geojsonTrafficSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *geojsonTrafficSource) Fetch(ctx context.Context, client *http.Client) ([][]byte, error) {
	headers := map[string]string{}
	if s.headerKey != "" {
		headers[s.headerKey] = s.headerVal
	}
	body, err := doGet(ctx, client, s.url, headers)
	if err != nil {
		return nil, err
	}
	return [][]byte{body}, nil
}

func (s *geojsonTrafficSource) Parse(payloads [][]byte, now time.Time) ([]domain.TrafficEvent, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%s: no payload", s.name)
	}
	fc, err := geojson.UnmarshalFeatureCollection(payloads[0])
	if err != nil {
		return nil, fmt.Errorf("%s: decode geojson: %w", s.name, err)
	}
	out := make([]domain.TrafficEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		ev, ok := geojsonFeatureToTraffic(s.name, string(s.state), f, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func geojsonFeatureToTraffic(source string, region string, f *geojson.Feature, now time.Time) (domain.TrafficEvent, bool) {
	props := f.Properties
	headline := propString(props, "headline", "title", "description", "roadName")
	desc := propString(props, "description", "advice", "otherAdvice")
	endAt := propTimeString(props, "endTime", "cleared_at", "end_time")
	if IsExpired(endAt, now) {
		return domain.TrafficEvent{}, false
	}
	startAt := propTimeString(props, "startTime", "start_time", "created")
	upstreamID := propString(props, "id", "eventId", "objectid")
	typ := classifyTrafficKeyword(headline, desc)
	if rt := propString(props, "eventType", "type"); rt != "" {
		if mapped, ok := mapNSWEventType(rt); ok {
			typ = mapped
		}
	}
	sev := classifySeverityKeyword(headline, desc)
	var bbox *domain.BBox
	var geomVal any
	if f.Geometry != nil {
		geomVal = f.Geometry
		if b, ok := geojsonGeometryBBox(f.Geometry); ok {
			bbox = &b
		}
	}
	return domain.TrafficEvent{
		ID:          StableID(source, source, upstreamID, headline, derefStr(startAt), geomSignature(geomVal)),
		Source:      source,
		Feed:        source,
		Type:        typ,
		Severity:    sev,
		Headline:    headline,
		Description: desc,
		IssuedAt:    startAt,
		StartAt:     startAt,
		EndAt:       endAt,
		Geometry:    geomVal,
		BBox:        bbox,
		Region:      region,
		Raw:         f,
	}, true
}

func mapNSWEventType(t string) (domain.TrafficType, bool) {
	switch t {
	case "Crash", "Incident":
		return domain.TrafficCrash, true
	case "Roadworks", "Maintenance":
		return domain.TrafficRoadworks, true
	case "Congestion":
		return domain.TrafficCongestion, true
	case "Flooding":
		return domain.TrafficFlooding, true
	case "Closure":
		return domain.TrafficClosure, true
	default:
		return "", false
	}
}

func propString(props map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func propTimeString(props map[string]interface{}, keys ...string) *string {
	s := propString(props, keys...)
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func geojsonGeometryBBox(g *geojson.Geometry) (domain.BBox, bool) {
	switch {
	case g.IsPoint():
		p := g.Point
		return domain.BBox{MinLng: p[0], MaxLng: p[0], MinLat: p[1], MaxLat: p[1]}, true
	case g.IsLineString():
		return bboxFromCoords(g.LineString), true
	case g.IsMultiLineString():
		var all [][]float64
		for _, line := range g.MultiLineString {
			all = append(all, line...)
		}
		return bboxFromCoords(all), len(all) > 0
	case g.IsPolygon():
		var all [][]float64
		for _, ring := range g.Polygon {
			all = append(all, ring...)
		}
		return bboxFromCoords(all), len(all) > 0
	default:
		return domain.BBox{}, false
	}
}

func bboxFromCoords(coords [][]float64) domain.BBox {
	if len(coords) == 0 {
		return domain.BBox{}
	}
	b := domain.BBox{MinLng: coords[0][0], MaxLng: coords[0][0], MinLat: coords[0][1], MaxLat: coords[0][1]}
	for _, c := range coords[1:] {
		if c[0] < b.MinLng {
			b.MinLng = c[0]
		}
		if c[0] > b.MaxLng {
			b.MaxLng = c[0]
		}
		if c[1] < b.MinLat {
			b.MinLat = c[1]
		}
		if c[1] > b.MaxLat {
			b.MaxLat = c[1]
		}
	}
	return b
}
