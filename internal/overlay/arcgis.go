package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// arcgisFeatureSet is the hand-rolled decode target for Esri ArcGIS REST
// FeatureServer/MapServer "query" responses (WA Main Roads, TAS TheList).
// The {x,y}/rings/paths geometry dialect is Esri-specific, so the decode
// targets are hand-rolled.
type arcgisFeatureSet struct {
	Features []arcgisFeature `json:"features"`
}

type arcgisGeometry struct {
	X     *float64      `json:"x"`
	Y     *float64      `json:"y"`
	Paths [][][]float64 `json:"paths"`
	Rings [][][]float64 `json:"rings"`
}

type arcgisFeature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   arcgisGeometry `json:"geometry"`
}

type arcgisFieldMap struct {
	ID, Headline, Description, EventType, Severity, StartAt, EndAt string
}

type arcgisTrafficSource struct {
	name, url string
	state     StateCode
	enabled   bool
	fields    arcgisFieldMap
}

func NewArcGISTrafficSource(name, url string, state StateCode, enabled bool, fields arcgisFieldMap) TrafficSource {
	return &arcgisTrafficSource{name: name, url: url, state: state, enabled: enabled, fields: fields}
}

func (s *arcgisTrafficSource) Name() string     { return s.name }
func (s *arcgisTrafficSource) State() StateCode { return s.state }
func (s *arcgisTrafficSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *arcgisTrafficSource) Fetch(ctx context.Context, client *http.Client) ([][]byte, error) {
	body, err := doGet(ctx, client, s.url, nil)
	if err != nil {
		return nil, err
	}
	return [][]byte{body}, nil
}

func (s *arcgisTrafficSource) Parse(payloads [][]byte, now time.Time) ([]domain.TrafficEvent, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%s: no payload", s.name)
	}
	var fs arcgisFeatureSet
	if err := json.Unmarshal(payloads[0], &fs); err != nil {
		return nil, fmt.Errorf("%s: decode arcgis: %w", s.name, err)
	}
	out := make([]domain.TrafficEvent, 0, len(fs.Features))
	for _, f := range fs.Features {
		ev, ok := arcgisFeatureToTraffic(s.name, string(s.state), f, s.fields, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func arcgisFeatureToTraffic(source, region string, f arcgisFeature, fields arcgisFieldMap, now time.Time) (domain.TrafficEvent, bool) {
	attr := f.Attributes
	headline := attrString(attr, fields.Headline)
	desc := attrString(attr, fields.Description)
	endAt := attrTimePtr(attr, fields.EndAt)
	if IsExpired(endAt, now) {
		return domain.TrafficEvent{}, false
	}
	startAt := attrTimePtr(attr, fields.StartAt)
	upstreamID := attrString(attr, fields.ID)
	typ := classifyTrafficKeyword(headline, desc)
	sev := classifySeverityKeyword(headline, desc)
	if s := attrString(attr, fields.Severity); s != "" {
		sev = NormalizeHazardSeverityToTraffic(s)
	}
	bbox, geomVal := arcgisGeometryBBox(f.Geometry)
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
		Raw:         f.Attributes,
	}, true
}

// NormalizeHazardSeverityToTraffic maps a severity word found on a traffic
// feed's attribute table onto the traffic severity vocabulary (distinct
// from the hazard one, but sourced from the same free-text values).
func NormalizeHazardSeverityToTraffic(s string) domain.TrafficSeverity {
	switch NormalizeHazardSeverity(s) {
	case domain.HazardSevExtreme, domain.HazardSevSevere:
		return domain.TrafficSevSevere
	case domain.HazardSevModerate:
		return domain.TrafficSevMajor
	case domain.HazardSevMinor:
		return domain.TrafficSevMinor
	default:
		return domain.TrafficSevInfo
	}
}

func attrString(attr map[string]any, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := attr[key]; ok {
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}

// attrTimePtr reads an ArcGIS epoch-millisecond timestamp field and renders
// it as RFC3339 so it composes with the rest of the overlay pipeline's
// string-timestamp convention.
func attrTimePtr(attr map[string]any, key string) *string {
	if key == "" {
		return nil
	}
	v, ok := attr[key]
	if !ok {
		return nil
	}
	ms, ok := v.(float64)
	if !ok || ms == 0 {
		return nil
	}
	t := time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339)
	return &t
}

func arcgisGeometryBBox(g arcgisGeometry) (*domain.BBox, any) {
	if g.X != nil && g.Y != nil {
		b := domain.BBox{MinLng: *g.X, MaxLng: *g.X, MinLat: *g.Y, MaxLat: *g.Y}
		return &b, map[string]float64{"x": *g.X, "y": *g.Y}
	}
	var all [][]float64
	for _, p := range g.Paths {
		all = append(all, p...)
	}
	for _, r := range g.Rings {
		all = append(all, r...)
	}
	if len(all) == 0 {
		return nil, nil
	}
	b := bboxFromCoords(all)
	return &b, g
}

// arcgisHazardSource handles TAS TheList's ArcGIS FeatureServer for current
// emergency/fire incidents.
type arcgisHazardSource struct {
	name, url string
	state     StateCode
	enabled   bool
	fields    arcgisFieldMap
}

func NewArcGISHazardSource(name, url string, state StateCode, enabled bool, fields arcgisFieldMap) HazardSource {
	return &arcgisHazardSource{name: name, url: url, state: state, enabled: enabled, fields: fields}
}

func (s *arcgisHazardSource) Name() string     { return s.name }
func (s *arcgisHazardSource) State() StateCode { return s.state }
func (s *arcgisHazardSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *arcgisHazardSource) Fetch(ctx context.Context, client *http.Client) ([]byte, error) {
	return doGet(ctx, client, s.url, nil)
}

func (s *arcgisHazardSource) Parse(payload []byte, now time.Time) ([]domain.HazardEvent, error) {
	var fs arcgisFeatureSet
	if err := json.Unmarshal(payload, &fs); err != nil {
		return nil, fmt.Errorf("%s: decode arcgis: %w", s.name, err)
	}
	out := make([]domain.HazardEvent, 0, len(fs.Features))
	for _, f := range fs.Features {
		ev, ok := arcgisFeatureToHazard(s.name, string(s.state), f, s.fields, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func arcgisFeatureToHazard(source, region string, f arcgisFeature, fields arcgisFieldMap, now time.Time) (domain.HazardEvent, bool) {
	attr := f.Attributes
	headline := attrString(attr, fields.Headline)
	desc := attrString(attr, fields.Description)
	endAt := attrTimePtr(attr, fields.EndAt)
	if IsExpired(endAt, now) {
		return domain.HazardEvent{}, false
	}
	startAt := attrTimePtr(attr, fields.StartAt)
	upstreamID := attrString(attr, fields.ID)
	kind := classifyHazardKeyword(headline, desc)
	sev := NormalizeHazardSeverity(attrString(attr, fields.Severity))
	bbox, geomVal := arcgisGeometryBBox(f.Geometry)
	urg := domain.CapUrgencyUnknown
	cer := domain.CapCertaintyUnknown
	return domain.HazardEvent{
		ID:                StableID(source, source, upstreamID, headline, derefStr(startAt), geomSignature(geomVal)),
		Source:            source,
		Kind:              kind,
		Severity:          sev,
		Headline:          headline,
		Description:       desc,
		IssuedAt:          startAt,
		StartAt:           startAt,
		EndAt:             endAt,
		Geometry:          geomVal,
		BBox:              bbox,
		Region:            region,
		Raw:               f.Attributes,
		Urgency:           urg,
		Certainty:         cer,
		EffectivePriority: EffectivePriority(sev, urg, cer),
	}, true
}
