package overlay

import (
	"math"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// CAP-AU composite priority scoring tables. Each dimension
// maps onto [0,1]; effective_priority is their weighted sum, rounded to
// three decimals: 0.40*severity + 0.35*urgency + 0.25*certainty.
var severityScore = map[domain.HazardSeverity]float64{
	domain.HazardSevExtreme:  1.0,
	domain.HazardSevSevere:   0.8,
	domain.HazardSevModerate: 0.5,
	domain.HazardSevMinor:    0.2,
	domain.HazardSevUnknown:  0.0,
}

var urgencyScore = map[domain.CapUrgency]float64{
	domain.CapUrgencyImmediate: 1.0,
	domain.CapUrgencyExpected:  0.7,
	domain.CapUrgencyFuture:    0.4,
	domain.CapUrgencyPast:      0.1,
	domain.CapUrgencyUnknown:   0.0,
}

var certaintyScore = map[domain.CapCertainty]float64{
	domain.CapCertaintyObserved: 1.0,
	domain.CapCertaintyLikely:   0.7,
	domain.CapCertaintyPossible: 0.5,
	domain.CapCertaintyUnlikely: 0.2,
	domain.CapCertaintyUnknown:  0.0,
}

// EffectivePriority computes the CAP-AU composite priority scalar.
func EffectivePriority(sev domain.HazardSeverity, urg domain.CapUrgency, cer domain.CapCertainty) float64 {
	v := 0.40*severityScore[sev] + 0.35*urgencyScore[urg] + 0.25*certaintyScore[cer]
	return math.Round(v*1000) / 1000
}
