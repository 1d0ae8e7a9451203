package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// vendorEvent is the hand-rolled decode target for jurisdictions (VIC
// VicTraffic, NT Travel Map) whose APIs return a bespoke flat JSON shape
// that is neither GeoJSON nor ArcGIS.
type vendorEvent struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
}

type vendorEnvelope struct {
	Events []vendorEvent `json:"events"`
}

type vendorTrafficSource struct {
	name, url string
	state     StateCode
	enabled   bool
}

func NewVendorJSONTrafficSource(name, url string, state StateCode, enabled bool) TrafficSource {
	return &vendorTrafficSource{name: name, url: url, state: state, enabled: enabled}
}

func (s *vendorTrafficSource) Name() string     { return s.name }
func (s *vendorTrafficSource) State() StateCode { return s.state }
func (s *vendorTrafficSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *vendorTrafficSource) Fetch(ctx context.Context, client *http.Client) ([][]byte, error) {
	body, err := doGet(ctx, client, s.url, nil)
	if err != nil {
		return nil, err
	}
	return [][]byte{body}, nil
}

func (s *vendorTrafficSource) Parse(payloads [][]byte, now time.Time) ([]domain.TrafficEvent, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%s: no payload", s.name)
	}
	var env vendorEnvelope
	if err := json.Unmarshal(payloads[0], &env); err != nil {
		return nil, fmt.Errorf("%s: decode vendor json: %w", s.name, err)
	}
	out := make([]domain.TrafficEvent, 0, len(env.Events))
	for _, e := range env.Events {
		ev, ok := vendorEventToTraffic(s.name, string(s.state), e, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func vendorEventToTraffic(source, region string, e vendorEvent, now time.Time) (domain.TrafficEvent, bool) {
	endAt := nonEmptyPtr(e.EndTime)
	if IsExpired(endAt, now) {
		return domain.TrafficEvent{}, false
	}
	startAt := nonEmptyPtr(e.StartTime)
	typ := mapVendorCategory(e.Category)
	if typ == "" {
		typ = classifyTrafficKeyword(e.Title, e.Description)
	}
	sev := NormalizeHazardSeverityToTraffic(e.Severity)
	bbox := &domain.BBox{MinLng: e.Lng, MaxLng: e.Lng, MinLat: e.Lat, MaxLat: e.Lat}
	geomVal := map[string]float64{"lat": e.Lat, "lng": e.Lng}
	return domain.TrafficEvent{
		ID:          StableID(source, source, e.ID, e.Title, derefStr(startAt), geomSignature(geomVal)),
		Source:      source,
		Feed:        source,
		Type:        typ,
		Severity:    sev,
		Headline:    e.Title,
		Description: e.Description,
		IssuedAt:    startAt,
		StartAt:     startAt,
		EndAt:       endAt,
		Geometry:    geomVal,
		BBox:        bbox,
		Region:      region,
		Raw:         e,
	}, true
}

func mapVendorCategory(cat string) domain.TrafficType {
	switch cat {
	case "crash", "incident":
		return domain.TrafficCrash
	case "roadworks", "works":
		return domain.TrafficRoadworks
	case "congestion":
		return domain.TrafficCongestion
	case "flooding":
		return domain.TrafficFlooding
	case "closure":
		return domain.TrafficClosure
	default:
		return ""
	}
}

type vendorHazardEvent struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	IssuedAt    string  `json:"issued_at"`
	ExpiresAt   string  `json:"expires_at"`
}

type vendorHazardEnvelope struct {
	Alerts []vendorHazardEvent `json:"alerts"`
}

// vendorHazardSource handles agencies (QLD QFES alerts) that publish a
// bespoke flat JSON feed rather than CAP-AU XML.
type vendorHazardSource struct {
	name, url string
	state     StateCode
	enabled   bool
}

func NewVendorJSONHazardSource(name, url string, state StateCode, enabled bool) HazardSource {
	return &vendorHazardSource{name: name, url: url, state: state, enabled: enabled}
}

func (s *vendorHazardSource) Name() string     { return s.name }
func (s *vendorHazardSource) State() StateCode { return s.state }
func (s *vendorHazardSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *vendorHazardSource) Fetch(ctx context.Context, client *http.Client) ([]byte, error) {
	return doGet(ctx, client, s.url, nil)
}

func (s *vendorHazardSource) Parse(payload []byte, now time.Time) ([]domain.HazardEvent, error) {
	var env vendorHazardEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%s: decode vendor json: %w", s.name, err)
	}
	out := make([]domain.HazardEvent, 0, len(env.Alerts))
	for _, a := range env.Alerts {
		ev, ok := vendorAlertToHazard(s.name, string(s.state), a, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func vendorAlertToHazard(source, region string, a vendorHazardEvent, now time.Time) (domain.HazardEvent, bool) {
	endAt := nonEmptyPtr(a.ExpiresAt)
	if IsExpired(endAt, now) {
		return domain.HazardEvent{}, false
	}
	issuedAt := nonEmptyPtr(a.IssuedAt)
	sev := NormalizeHazardSeverity(a.Severity)
	kind := classifyHazardKeyword(a.Title, a.Description)
	if mapped, ok := mapVendorHazardCategory(a.Category); ok {
		kind = mapped
	}
	bbox := &domain.BBox{MinLng: a.Lng, MaxLng: a.Lng, MinLat: a.Lat, MaxLat: a.Lat}
	geomVal := map[string]float64{"lat": a.Lat, "lng": a.Lng}
	urg := domain.CapUrgencyUnknown
	cer := domain.CapCertaintyUnknown
	return domain.HazardEvent{
		ID:                StableID(source, source, a.ID, a.Title, derefStr(issuedAt), geomSignature(geomVal)),
		Source:            source,
		Kind:              kind,
		Severity:          sev,
		Headline:          a.Title,
		Description:       a.Description,
		IssuedAt:          issuedAt,
		StartAt:           issuedAt,
		EndAt:             endAt,
		Geometry:          geomVal,
		BBox:              bbox,
		Region:            region,
		Raw:               a,
		Urgency:           urg,
		Certainty:         cer,
		EffectivePriority: EffectivePriority(sev, urg, cer),
	}, true
}

func mapVendorHazardCategory(cat string) (domain.HazardKind, bool) {
	switch cat {
	case "fire":
		return domain.HazardFire, true
	case "flood":
		return domain.HazardFlood, true
	case "storm":
		return domain.HazardStorm, true
	case "cyclone":
		return domain.HazardCyclone, true
	case "heat":
		return domain.HazardHeat, true
	default:
		return domain.HazardOther, false
	}
}
