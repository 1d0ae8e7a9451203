package overlay

import (
	"strings"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// classifyTrafficKeyword is the fallback keyword match over headline+
// description used when a source's structured fields don't map cleanly.
// Patterns are checked in a fixed priority order so a
// headline mentioning several keywords resolves deterministically.
func classifyTrafficKeyword(headline, description string) domain.TrafficType {
	text := strings.ToLower(headline + " " + description)
	switch {
	case containsAny(text, "closed", "closure", "road closed"):
		return domain.TrafficClosure
	case containsAny(text, "flood", "floodway", "inundat"):
		return domain.TrafficFlooding
	case containsAny(text, "crash", "accident", "collision"):
		return domain.TrafficCrash
	case containsAny(text, "roadwork", "road work", "construction", "maintenance"):
		return domain.TrafficRoadworks
	case containsAny(text, "congestion", "delay", "heavy traffic", "slow traffic"):
		return domain.TrafficCongestion
	default:
		return domain.TrafficHazard
	}
}

// classifySeverityKeyword is the fallback traffic severity inference when
// a source doesn't carry a structured severity field.
func classifySeverityKeyword(headline, description string) domain.TrafficSeverity {
	text := strings.ToLower(headline + " " + description)
	switch {
	case containsAny(text, "severe", "major incident", "emergency"):
		return domain.TrafficSevSevere
	case containsAny(text, "major"):
		return domain.TrafficSevMajor
	case containsAny(text, "minor"):
		return domain.TrafficSevMinor
	default:
		return domain.TrafficSevInfo
	}
}

// classifyHazardKeyword is the fallback hazard-kind keyword match, used
// for feeds (e.g. BOM RSS) that carry only free-text titles.
func classifyHazardKeyword(headline, description string) domain.HazardKind {
	text := strings.ToLower(headline + " " + description)
	switch {
	case containsAny(text, "bushfire", "grassfire", "fire warning", "fire danger"):
		return domain.HazardFire
	case containsAny(text, "flood"):
		return domain.HazardFlood
	case containsAny(text, "cyclone"):
		return domain.HazardCyclone
	case containsAny(text, "severe thunderstorm", "storm", "gale", "damaging wind"):
		return domain.HazardStorm
	case containsAny(text, "heatwave", "extreme heat"):
		return domain.HazardHeat
	default:
		return domain.HazardOther
	}
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// NormalizeHazardSeverity coerces a free-text CAP severity value to the
// closed vocabulary, defaulting to unknown.
func NormalizeHazardSeverity(s string) domain.HazardSeverity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extreme":
		return domain.HazardSevExtreme
	case "severe":
		return domain.HazardSevSevere
	case "moderate":
		return domain.HazardSevModerate
	case "minor":
		return domain.HazardSevMinor
	default:
		return domain.HazardSevUnknown
	}
}

// NormalizeCapUrgency coerces a free-text CAP urgency value.
func NormalizeCapUrgency(s string) domain.CapUrgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return domain.CapUrgencyImmediate
	case "expected":
		return domain.CapUrgencyExpected
	case "future":
		return domain.CapUrgencyFuture
	case "past":
		return domain.CapUrgencyPast
	default:
		return domain.CapUrgencyUnknown
	}
}

// NormalizeCapCertainty coerces a free-text CAP certainty value.
func NormalizeCapCertainty(s string) domain.CapCertainty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "observed":
		return domain.CapCertaintyObserved
	case "likely":
		return domain.CapCertaintyLikely
	case "possible":
		return domain.CapCertaintyPossible
	case "unlikely":
		return domain.CapCertaintyUnlikely
	default:
		return domain.CapCertaintyUnknown
	}
}
