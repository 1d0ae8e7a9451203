package overlay

import "testing"

func TestStableID_PrefersUpstreamID(t *testing.T) {
	id := StableID("qld", "qld_traffic_v2", "ABC123", "Crash on M1", "2026-07-31T00:00:00Z", "")
	if id != "qld:qld_traffic_v2:ABC123" {
		t.Fatalf("got %q", id)
	}
}

func TestStableID_HashFallbackDeterministic(t *testing.T) {
	a := StableID("bom", "bom_warnings_qld", "", "Severe Weather Warning", "2026-07-31T00:00:00Z", "geom-sig")
	b := StableID("bom", "bom_warnings_qld", "", "Severe Weather Warning", "2026-07-31T00:00:00Z", "geom-sig")
	if a != b {
		t.Fatalf("expected deterministic id, got %q vs %q", a, b)
	}
	c := StableID("bom", "bom_warnings_qld", "", "Different headline", "2026-07-31T00:00:00Z", "geom-sig")
	if a == c {
		t.Fatalf("expected different headlines to produce different ids")
	}
}
