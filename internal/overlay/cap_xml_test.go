package overlay

import (
	"fmt"
	"testing"
	"time"
)

const capDoc = `<?xml version="1.0" encoding="UTF-8"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <sender>cfs@sa.gov.au</sender>
  <sent>2026-07-31T10:00:00+09:30</sent>
  <info>
    <event>Bushfire Advice</event>
    <urgency>Immediate</urgency>
    <severity>Severe</severity>
    <certainty>Observed</certainty>
    <headline>Bushfire at Cherry Gardens</headline>
    <description>A bushfire is burning near Cherry Gardens.</description>
    <expires>%s</expires>
    <area>
      <areaDesc>Cherry Gardens</areaDesc>
      <polygon>-35.06,138.66 -35.08,138.66 -35.08,138.70 -35.06,138.70 -35.06,138.66</polygon>
    </area>
  </info>
</alert>`

func TestCapXMLParse_ScoresAndGeometry(t *testing.T) {
	now := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	src := NewCapXMLHazardSource("sa_cfs", "https://example/cap.xml", StateSA, true)
	doc := []byte(fmt.Sprintf(capDoc, "2026-07-31T18:00:00+09:30"))

	events, err := src.(*capXMLHazardSource).Parse(doc, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.EffectivePriority != 0.920 {
		t.Errorf("effective_priority = %v, want 0.920 for severe/immediate/observed", e.EffectivePriority)
	}
	if e.BBox == nil {
		t.Fatalf("expected a bbox derived from the CAP polygon")
	}
	if !e.BBox.Contains(-35.07, 138.68) {
		t.Errorf("polygon centre not inside derived bbox %+v", e.BBox)
	}
}

func TestCapXMLParse_DropsExpiredAlert(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	src := NewCapXMLHazardSource("sa_cfs", "https://example/cap.xml", StateSA, true)
	// expired an hour before now
	doc := []byte(fmt.Sprintf(capDoc, "2026-07-31T20:30:00+09:30"))

	events, err := src.(*capXMLHazardSource).Parse(doc, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected zero events for an expired alert, got %d", len(events))
	}
}
