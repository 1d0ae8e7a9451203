package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// qldFeature mirrors the QLD Traffic and Travel Information API v2's
// GeoJSON-flavoured event feature.
type qldFeature struct {
	Type     string `json:"type"`
	Geometry *struct {
		Type        string `json:"type"`
		Coordinates []any  `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		ID             string `json:"id"`
		EventType      string `json:"event_type"`
		EventSubtype   string `json:"event_subtype"`
		ImpactPriority string `json:"impact_priority"`
		Description    string `json:"description"`
		Information    string `json:"information"`
		RoadSummary    struct {
			RoadName string `json:"road_name"`
		} `json:"road_summary"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		Status    string `json:"status"`
	} `json:"properties"`
}

type qldFeatureCollection struct {
	Type     string       `json:"type"`
	Features []qldFeature `json:"features"`
}

// QLDMergeCache is the process-wide full/delta merge structure for the QLD
// v2 feed.
// QLD publishes a full snapshot plus an incremental delta; callers apply
// the full snapshot on cold start or periodic resync and deltas in between.
type QLDMergeCache struct {
	mu     sync.RWMutex
	byID   map[string]domain.TrafficEvent
	seeded bool
}

func NewQLDMergeCache() *QLDMergeCache {
	return &QLDMergeCache{byID: make(map[string]domain.TrafficEvent)}
}

// ApplyFull replaces the entire cache contents.
func (c *QLDMergeCache) ApplyFull(events []domain.TrafficEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]domain.TrafficEvent, len(events))
	for _, e := range events {
		next[e.ID] = e
	}
	c.byID = next
	c.seeded = true
}

// ApplyDelta mutates the cache in place: upserts changed/new events,
// removes the events whose ids are listed in removedIDs.
func (c *QLDMergeCache) ApplyDelta(events []domain.TrafficEvent, removedIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range events {
		c.byID[e.ID] = e
	}
	for _, id := range removedIDs {
		delete(c.byID, id)
	}
}

// Snapshot returns a point-in-time copy of every cached event.
func (c *QLDMergeCache) Snapshot() []domain.TrafficEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.TrafficEvent, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e)
	}
	return out
}

func (c *QLDMergeCache) IsSeeded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seeded
}

// qldSource fetches the full events endpoint while the cache is unseeded
// (or no delta URL is set) and only the delta endpoint once it is seeded,
// merging the result through the shared QLDMergeCache before returning a
// snapshot.
type qldSource struct {
	name      string
	enabled   bool
	eventsURL string
	deltaURL  string
	apiKey    string
	cache     *QLDMergeCache
}

func NewQLDSource(eventsURL, deltaURL, apiKey string, enabled bool, cache *QLDMergeCache) TrafficSource {
	if cache == nil {
		cache = NewQLDMergeCache()
	}
	return &qldSource{name: "qld_traffic_v2", enabled: enabled, eventsURL: eventsURL, deltaURL: deltaURL, apiKey: apiKey, cache: cache}
}

func (s *qldSource) Name() string     { return s.name }
func (s *qldSource) State() StateCode { return StateQLD }
func (s *qldSource) Enabled() bool    { return s.enabled && s.eventsURL != "" }

func (s *qldSource) Fetch(ctx context.Context, client *http.Client) ([][]byte, error) {
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["apikey"] = s.apiKey
	}
	// On a cold cache, fetch the full snapshot only. Once seeded, the
	// delta endpoint is enough to keep the merge cache current.
	if !s.cache.IsSeeded() || s.deltaURL == "" {
		full, err := doGet(ctx, client, s.eventsURL, headers)
		if err != nil {
			return nil, err
		}
		return [][]byte{full, nil}, nil
	}
	delta, err := doGet(ctx, client, s.deltaURL, headers)
	if err != nil {
		return nil, err
	}
	return [][]byte{nil, delta}, nil
}

func (s *qldSource) Parse(payloads [][]byte, now time.Time) ([]domain.TrafficEvent, error) {
	if len(payloads) != 2 {
		return nil, fmt.Errorf("qld: expected [full, delta] payload pair")
	}
	full, delta := payloads[0], payloads[1]
	if full != nil {
		events, err := parseQLDCollection(full, now)
		if err != nil {
			return nil, fmt.Errorf("qld: parse full: %w", err)
		}
		s.cache.ApplyFull(events)
	}
	if delta != nil {
		events, removed, err := parseQLDDelta(delta, now)
		if err != nil {
			return nil, fmt.Errorf("qld: parse delta: %w", err)
		}
		s.cache.ApplyDelta(events, removed)
	}
	return s.cache.Snapshot(), nil
}

func parseQLDCollection(raw []byte, now time.Time) ([]domain.TrafficEvent, error) {
	var fc qldFeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, err
	}
	out := make([]domain.TrafficEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		if ev, ok := qldFeatureToEvent(f, now); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

type qldDeltaEnvelope struct {
	Type     string       `json:"type"`
	Features []qldFeature `json:"features"`
	Removed  []string     `json:"removed_ids"`
}

func parseQLDDelta(raw []byte, now time.Time) ([]domain.TrafficEvent, []string, error) {
	var env qldDeltaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, err
	}
	out := make([]domain.TrafficEvent, 0, len(env.Features))
	for _, f := range env.Features {
		if ev, ok := qldFeatureToEvent(f, now); ok {
			out = append(out, ev)
		}
	}
	// The cache is keyed by stable id, so map the upstream ids onto it.
	removed := make([]string, 0, len(env.Removed))
	for _, id := range env.Removed {
		removed = append(removed, StableID("qld", "qld_traffic_v2", id, "", "", ""))
	}
	return out, removed, nil
}

func qldFeatureToEvent(f qldFeature, now time.Time) (domain.TrafficEvent, bool) {
	p := f.Properties
	endAt := nonEmptyPtr(p.EndTime)
	if IsExpired(endAt, now) {
		return domain.TrafficEvent{}, false
	}
	headline := p.Description
	if headline == "" {
		headline = p.EventType
	}
	typ := mapQLDEventType(p.EventType, p.EventSubtype)
	if typ == domain.TrafficHazard {
		typ = classifyTrafficKeyword(headline, p.Information)
	}
	sev := mapQLDImpact(p.ImpactPriority)
	if sev == "" {
		sev = classifySeverityKeyword(headline, p.Information)
	}
	var geom any
	var bbox *domain.BBox
	if f.Geometry != nil {
		geom = f.Geometry
		if b, ok := qldGeometryBBox(f.Geometry.Type, f.Geometry.Coordinates); ok {
			bbox = &b
		}
	}
	return domain.TrafficEvent{
		ID:          StableID("qld", "qld_traffic_v2", p.ID, headline, p.StartTime, geomSignature(geom)),
		Source:      "qld",
		Feed:        "qld_traffic_v2",
		Type:        typ,
		Severity:    sev,
		Headline:    headline,
		Description: p.Information,
		IssuedAt:    nonEmptyPtr(p.StartTime),
		StartAt:     nonEmptyPtr(p.StartTime),
		EndAt:       endAt,
		Geometry:    geom,
		BBox:        bbox,
		Region:      "qld",
		Raw:         f,
	}, true
}

func mapQLDEventType(eventType, subtype string) domain.TrafficType {
	switch eventType {
	case "CRASH", "INCIDENT":
		return domain.TrafficCrash
	case "ROADWORK", "PLANNED_EVENT":
		return domain.TrafficRoadworks
	case "CONGESTION":
		return domain.TrafficCongestion
	case "FLOODING":
		return domain.TrafficFlooding
	case "CLOSURE", "ROAD_CLOSED":
		return domain.TrafficClosure
	default:
		return domain.TrafficHazard
	}
}

func mapQLDImpact(impact string) domain.TrafficSeverity {
	switch impact {
	case "HIGH", "IMMEDIATE":
		return domain.TrafficSevSevere
	case "MEDIUM":
		return domain.TrafficSevMajor
	case "LOW":
		return domain.TrafficSevMinor
	case "NONE", "PLANNED":
		return domain.TrafficSevInfo
	default:
		return ""
	}
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
