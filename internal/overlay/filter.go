package overlay

import (
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func parseTime(s *string) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsExpired reports whether endAt is a parseable timestamp already in the
// past relative to now.
func IsExpired(endAt *string, now time.Time) bool {
	t, ok := parseTime(endAt)
	if !ok {
		return false
	}
	return t.Before(now)
}

// AdmitByGeometry reports whether an event with the given geometry-derived
// bbox (nil if the event carries no geometry) should be admitted for a
// query against queryBBox. Events with geometry are bbox-filtered directly;
// events without geometry are admitted only when the query bbox is "large
// enough" (its diagonal is at least DiagonalAdmitThreshold degrees), so
// national warnings surface for national-scale queries but not narrow
// corridor queries.
func AdmitByGeometry(eventBBox *domain.BBox, queryBBox domain.BBox) bool {
	if eventBBox != nil {
		return eventBBox.Overlaps(queryBBox)
	}
	return queryBBox.DiagonalDegrees() >= DiagonalAdmitThreshold
}

// DedupTraffic removes duplicate events by id, keeping the first-seen
// occurrence.
func DedupTraffic(events []domain.TrafficEvent) []domain.TrafficEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]domain.TrafficEvent, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// DedupHazards removes duplicate events by id, keeping the first-seen
// occurrence.
func DedupHazards(events []domain.HazardEvent) []domain.HazardEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]domain.HazardEvent, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
