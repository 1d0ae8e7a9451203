package overlay

import (
	"testing"
	"time"
)

func TestQLDMergeCache_FullThenDelta(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	full := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":null,"properties":{"id":"1","event_type":"CRASH","description":"Crash on M1","start_time":"2026-07-31T10:00:00Z"}},
		{"type":"Feature","geometry":null,"properties":{"id":"2","event_type":"ROADWORK","description":"Roadworks near Toowoomba","start_time":"2026-07-31T09:00:00Z"}}
	]}`
	delta := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":null,"properties":{"id":"3","event_type":"CONGESTION","description":"Delay on Pacific Mwy","start_time":"2026-07-31T11:00:00Z"}}
	],"removed_ids":["2"]}`

	cache := NewQLDMergeCache()
	src := NewQLDSource("https://example/events", "https://example/delta", "", true, cache)

	full1Events, err := src.Parse([][]byte{[]byte(full), nil}, now)
	if err != nil {
		t.Fatalf("parse full: %v", err)
	}
	if len(full1Events) != 2 {
		t.Fatalf("after full, got %d events, want 2", len(full1Events))
	}

	if !cache.IsSeeded() {
		t.Fatalf("expected cache to be seeded after applying a full snapshot")
	}

	deltaEvents, err := src.Parse([][]byte{nil, []byte(delta)}, now)
	if err != nil {
		t.Fatalf("parse delta: %v", err)
	}
	if len(deltaEvents) != 2 {
		t.Fatalf("after delta, got %d events, want 2 (id=1 kept, id=2 removed, id=3 added)", len(deltaEvents))
	}
	ids := map[string]bool{}
	for _, e := range deltaEvents {
		ids[e.ID] = true
	}
	if ids["qld:qld_traffic_v2:2"] {
		t.Fatalf("expected event id=2 to be removed by the delta")
	}
	if !ids["qld:qld_traffic_v2:3"] {
		t.Fatalf("expected event id=3 to be added by the delta")
	}
}
