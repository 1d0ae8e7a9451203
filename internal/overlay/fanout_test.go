package overlay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

type stubTrafficSource struct {
	name     string
	state    StateCode
	enabled  bool
	events   []domain.TrafficEvent
	fetchErr error
}

func (s *stubTrafficSource) Name() string     { return s.name }
func (s *stubTrafficSource) State() StateCode { return s.state }
func (s *stubTrafficSource) Enabled() bool    { return s.enabled }

func (s *stubTrafficSource) Fetch(context.Context, *http.Client) ([][]byte, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return [][]byte{nil}, nil
}

func (s *stubTrafficSource) Parse([][]byte, time.Time) ([]domain.TrafficEvent, error) {
	return s.events, nil
}

func bboxPtr(b domain.BBox) *domain.BBox { return &b }

// borderBBox straddles the NSW/QLD border, so both states' sources are in
// scope for every poll below.
var borderBBox = domain.BBox{MinLng: 149.5, MinLat: -29.5, MaxLng: 151.5, MaxLat: -27.8}

func TestPollTrafficCrossBorderWithOneSourceUnconfigured(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	qldEvent := domain.TrafficEvent{
		ID:       "qld:1",
		Source:   "qld_traffic",
		Type:     domain.TrafficCrash,
		Severity: domain.TrafficSevMajor,
		Headline: "Crash on the Cunningham Hwy",
		Region:   "qld",
		BBox:     bboxPtr(domain.BBox{MinLng: 150.0, MinLat: -28.5, MaxLng: 150.1, MaxLat: -28.4}),
	}
	f := NewFanout(http.DefaultClient, []TrafficSource{
		&stubTrafficSource{name: "qld_traffic", state: StateQLD, enabled: true, events: []domain.TrafficEvent{qldEvent}},
		&stubTrafficSource{name: "nsw_traffic", state: StateNSW, enabled: false},
	}, nil)

	events, states, warnings := f.PollTraffic(t.Context(), borderBBox, now)

	if len(events) != 1 || events[0].ID != "qld:1" {
		t.Errorf("events = %v, want the single QLD event", events)
	}
	if len(states) != 2 {
		t.Errorf("active states = %v, want qld and nsw", states)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "nsw") && strings.Contains(w, "skipped") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a skipped entry for the unconfigured NSW source", warnings)
	}
}

func TestPollTrafficSourceFailureBecomesWarning(t *testing.T) {
	now := time.Now().UTC()
	okEvent := domain.TrafficEvent{
		ID:     "qld:ok",
		Type:   domain.TrafficRoadworks,
		BBox:   bboxPtr(domain.BBox{MinLng: 150.0, MinLat: -28.5, MaxLng: 150.1, MaxLat: -28.4}),
		Region: "qld",
	}
	f := NewFanout(http.DefaultClient, []TrafficSource{
		&stubTrafficSource{name: "qld_traffic", state: StateQLD, enabled: true, events: []domain.TrafficEvent{okEvent}},
		&stubTrafficSource{name: "nsw_traffic", state: StateNSW, enabled: true, fetchErr: errors.New("upstream 500")},
	}, nil)

	events, _, warnings := f.PollTraffic(t.Context(), borderBBox, now)

	if len(events) != 1 {
		t.Errorf("a failing source must not fail the poll; events = %v", events)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "nsw_traffic") && strings.Contains(w, "fetch failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a fetch-failed entry for nsw_traffic", warnings)
	}
}

func TestPollTrafficPrunesExpiredAndDedups(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour).Format(time.RFC3339)
	inBBox := bboxPtr(domain.BBox{MinLng: 150.0, MinLat: -28.5, MaxLng: 150.1, MaxLat: -28.4})

	live := domain.TrafficEvent{ID: "e1", BBox: inBBox, Region: "qld"}
	expired := domain.TrafficEvent{ID: "e2", BBox: inBBox, Region: "qld", EndAt: &past}

	f := NewFanout(http.DefaultClient, []TrafficSource{
		&stubTrafficSource{name: "a", state: StateQLD, enabled: true, events: []domain.TrafficEvent{live, expired}},
		&stubTrafficSource{name: "b", state: StateNSW, enabled: true, events: []domain.TrafficEvent{live}},
	}, nil)

	events, _, _ := f.PollTraffic(t.Context(), borderBBox, now)

	if len(events) != 1 || events[0].ID != "e1" {
		t.Errorf("events = %v, want e1 once (e2 expired, duplicate e1 removed)", events)
	}
}

func TestPollTrafficRePollYieldsSameIDSet(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	inBBox := bboxPtr(domain.BBox{MinLng: 150.0, MinLat: -28.5, MaxLng: 150.1, MaxLat: -28.4})
	srcs := []TrafficSource{
		&stubTrafficSource{name: "a", state: StateQLD, enabled: true, events: []domain.TrafficEvent{
			{ID: "e1", BBox: inBBox}, {ID: "e2", BBox: inBBox},
		}},
		&stubTrafficSource{name: "b", state: StateNSW, enabled: true, events: []domain.TrafficEvent{
			{ID: "e3", BBox: inBBox},
		}},
	}
	f := NewFanout(http.DefaultClient, srcs, nil)

	idSet := func(events []domain.TrafficEvent) map[string]bool {
		out := make(map[string]bool, len(events))
		for _, e := range events {
			out[e.ID] = true
		}
		return out
	}
	first, _, _ := f.PollTraffic(t.Context(), borderBBox, now)
	second, _, _ := f.PollTraffic(t.Context(), borderBBox, now)
	a, b := idSet(first), idSet(second)
	if len(a) != 3 || len(a) != len(b) {
		t.Fatalf("id sets differ in size: %v vs %v", a, b)
	}
	for id := range a {
		if !b[id] {
			t.Errorf("id %s present in first poll but not the second", id)
		}
	}
}

type stubHazardSource struct {
	name    string
	state   StateCode
	enabled bool
	events  []domain.HazardEvent
}

func (s *stubHazardSource) Name() string     { return s.name }
func (s *stubHazardSource) State() StateCode { return s.state }
func (s *stubHazardSource) Enabled() bool    { return s.enabled }

func (s *stubHazardSource) Fetch(context.Context, *http.Client) ([]byte, error) { return nil, nil }

func (s *stubHazardSource) Parse([]byte, time.Time) ([]domain.HazardEvent, error) {
	return s.events, nil
}

func TestPollHazardsIncludesNationalSources(t *testing.T) {
	now := time.Now().UTC()
	inBBox := bboxPtr(domain.BBox{MinLng: 150.0, MinLat: -28.5, MaxLng: 150.1, MaxLat: -28.4})
	f := NewFanout(http.DefaultClient, nil, []HazardSource{
		&stubHazardSource{name: "qfes_alerts", state: StateQLD, enabled: true, events: []domain.HazardEvent{{ID: "h1", BBox: inBBox}}},
		// a national feed has no state and runs for every poll
		&stubHazardSource{name: "dea_hotspots", state: "", enabled: true, events: []domain.HazardEvent{{ID: "h2", BBox: inBBox}}},
		&stubHazardSource{name: "tas_thelist", state: StateTAS, enabled: true, events: []domain.HazardEvent{{ID: "h3", BBox: inBBox}}},
	})

	events, _, _ := f.PollHazards(t.Context(), borderBBox, now)

	ids := make(map[string]bool, len(events))
	for _, e := range events {
		ids[e.ID] = true
	}
	if !ids["h1"] || !ids["h2"] {
		t.Errorf("ids = %v, want the QLD and national events", ids)
	}
	if ids["h3"] {
		t.Errorf("a Tasmanian source ran for a mainland bbox")
	}
}

func TestPollHazardsGeometrylessAdmissionByDiagonal(t *testing.T) {
	now := time.Now().UTC()
	stateWide := domain.HazardEvent{ID: "warn1"} // no geometry, no bbox
	f := NewFanout(http.DefaultClient, nil, []HazardSource{
		&stubHazardSource{name: "bom_qld", state: StateQLD, enabled: true, events: []domain.HazardEvent{stateWide}},
	})

	// narrow corridor: diagonal well under the admission threshold
	narrow := domain.BBox{MinLng: 150.0, MinLat: -28.5, MaxLng: 150.1, MaxLat: -28.45}
	events, _, _ := f.PollHazards(t.Context(), narrow, now)
	if len(events) != 0 {
		t.Errorf("geometry-less event admitted for a narrow bbox")
	}

	events, _, _ = f.PollHazards(t.Context(), borderBBox, now)
	if len(events) != 1 {
		t.Errorf("geometry-less event dropped for a wide bbox")
	}
}
