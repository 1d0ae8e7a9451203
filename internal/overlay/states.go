// Package overlay implements the traffic/hazard fan-out: a
// static state bbox registry, a per-source parser registry, CAP-AU
// composite priority scoring, and the concurrent poll that dispatches to
// every active source for a bbox, merges, dedups, and caches the result.
package overlay

import "github.com/ecodiatate/roam-bundle-engine/internal/domain"

// StateCode is one of the eight Australian jurisdiction codes this engine
// dispatches overlay sources for. The bboxes intentionally overlap at
// borders so a cross-border route queries both sides.
type StateCode string

const (
	StateQLD StateCode = "qld"
	StateNSW StateCode = "nsw"
	StateVIC StateCode = "vic"
	StateSA  StateCode = "sa"
	StateWA  StateCode = "wa"
	StateNT  StateCode = "nt"
	StateTAS StateCode = "tas"
	StateACT StateCode = "act"
)

// stateBBoxes is the static bounding-box registry. Bounds are
// generous rectangles around each jurisdiction, not precise borders;
// precision is unnecessary since the registry only decides which sources
// to dispatch to, not which events to admit (that's the per-event
// geometry/bbox filter in filter.go).
var stateBBoxes = map[StateCode]domain.BBox{
	StateQLD: {MinLng: 137.9, MinLat: -29.2, MaxLng: 153.6, MaxLat: -9.0},
	StateNSW: {MinLng: 140.9, MinLat: -37.6, MaxLng: 153.7, MaxLat: -28.0},
	StateVIC: {MinLng: 140.9, MinLat: -39.3, MaxLng: 150.1, MaxLat: -33.9},
	StateSA:  {MinLng: 128.9, MinLat: -38.1, MaxLng: 141.1, MaxLat: -25.9},
	StateWA:  {MinLng: 112.8, MinLat: -35.3, MaxLng: 129.1, MaxLat: -13.5},
	StateNT:  {MinLng: 128.9, MinLat: -26.1, MaxLng: 138.1, MaxLat: -10.9},
	StateTAS: {MinLng: 143.8, MinLat: -43.7, MaxLng: 148.5, MaxLat: -39.5},
	// ACT is entirely inside the NSW rectangle above; it always piggy-backs
	// NSW's sources rather than carrying its own feed set.
	StateACT: {MinLng: 148.7, MinLat: -35.95, MaxLng: 149.4, MaxLat: -35.1},
}

// allStates is the dispatch order used when overlapping states is a tie
// (stable iteration for deterministic warnings[] ordering in tests).
var allStates = []StateCode{StateQLD, StateNSW, StateVIC, StateSA, StateWA, StateNT, StateTAS, StateACT}

// OverlappingStates returns every state whose registry bbox overlaps the
// query bbox, with ACT's hit folded into NSW.
func OverlappingStates(bbox domain.BBox) []StateCode {
	seen := make(map[StateCode]struct{}, 4)
	var out []StateCode
	add := func(s StateCode) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range allStates {
		b := stateBBoxes[s]
		if !bbox.Overlaps(b) {
			continue
		}
		if s == StateACT {
			add(StateNSW)
			continue
		}
		add(s)
	}
	return out
}

// DiagonalAdmitThreshold is the minimum query-bbox diagonal (degrees) at
// which geometry-less events are admitted.
const DiagonalAdmitThreshold = 0.35
