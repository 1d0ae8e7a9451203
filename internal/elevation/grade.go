package elevation

import "github.com/ecodiatate/roam-bundle-engine/internal/domain"

// fuelFactorForGrade is the fixed grade-to-fuel-penalty lookup: steep
// downhill discounts consumption, steep uphill penalises it.
func fuelFactorForGrade(gradePct float64) float64 {
	switch {
	case gradePct <= -5:
		return 0.85
	case gradePct <= -2:
		return 0.90
	case gradePct < 2:
		return 1.00
	case gradePct < 5:
		return 1.15
	default:
		return 1.35
	}
}

// GradeSegments divides profile into fixed-length segments (default 5km)
// and computes the average grade and fuel-penalty multiplier for each.
func GradeSegments(profile domain.ElevationProfile, segmentLengthKm float64) []domain.GradeSegment {
	samples := profile.Samples
	if len(samples) < 2 {
		return nil
	}
	if segmentLengthKm <= 0 {
		segmentLengthKm = 5.0
	}

	totalKm := samples[len(samples)-1].KmFromStart
	var segments []domain.GradeSegment
	startKm := 0.0

	for startKm < totalKm {
		endKm := startKm + segmentLengthKm
		if endKm > totalKm {
			endKm = totalKm
		}

		startElev := interpElevation(samples, startKm)
		endElev := interpElevation(samples, endKm)
		distKm := endKm - startKm
		elevChange := endElev - startElev

		var gradePct float64
		if distKm > 0.01 {
			gradePct = (elevChange / (distKm * 1000.0)) * 100.0
		}

		segments = append(segments, domain.GradeSegment{
			StartKm:      round(startKm, 2),
			EndKm:        round(endKm, 2),
			GradePercent: round(gradePct, 2),
			FuelFactor:   fuelFactorForGrade(gradePct),
		})
		startKm = endKm
	}
	return segments
}

// interpElevation linearly interpolates a profile's elevation at km.
func interpElevation(samples []domain.ElevationSample, km float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	if km <= samples[0].KmFromStart {
		return samples[0].ElevationM
	}
	last := samples[len(samples)-1]
	if km >= last.KmFromStart {
		return last.ElevationM
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].KmFromStart >= km {
			prev, curr := samples[i-1], samples[i]
			span := curr.KmFromStart - prev.KmFromStart
			if span < 1e-6 {
				return curr.ElevationM
			}
			frac := (km - prev.KmFromStart) / span
			return prev.ElevationM + (curr.ElevationM-prev.ElevationM)*frac
		}
	}
	return last.ElevationM
}
