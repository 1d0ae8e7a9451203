package elevation

import (
	"testing"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func TestFuelFactorForGrade(t *testing.T) {
	cases := []struct {
		gradePct float64
		want     float64
	}{
		{-10, 0.85},
		{-5, 0.85},
		{-3, 0.90},
		{-2, 0.90},
		{0, 1.00},
		{3, 1.15},
		{5, 1.35},
		{10, 1.35},
	}
	for _, c := range cases {
		if got := fuelFactorForGrade(c.gradePct); got != c.want {
			t.Errorf("fuelFactorForGrade(%v) = %v, want %v", c.gradePct, got, c.want)
		}
	}
}

func TestGradeSegments_SegmentsFlatProfile(t *testing.T) {
	profile := domain.ElevationProfile{
		Samples: []domain.ElevationSample{
			{KmFromStart: 0, ElevationM: 100},
			{KmFromStart: 5, ElevationM: 100},
			{KmFromStart: 10, ElevationM: 100},
			{KmFromStart: 12, ElevationM: 100},
		},
	}
	segs := GradeSegments(profile, 5.0)
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3 (0-5, 5-10, 10-12)", len(segs))
	}
	for _, s := range segs {
		if s.GradePercent != 0 {
			t.Errorf("flat profile segment has nonzero grade: %+v", s)
		}
		if s.FuelFactor != 1.0 {
			t.Errorf("flat profile segment has non-neutral fuel factor: %+v", s)
		}
	}
	if segs[2].EndKm != 12 {
		t.Errorf("last segment should end at total distance 12, got %v", segs[2].EndKm)
	}
}

func TestGradeSegments_ShortProfileReturnsNil(t *testing.T) {
	profile := domain.ElevationProfile{Samples: []domain.ElevationSample{{KmFromStart: 0, ElevationM: 100}}}
	if segs := GradeSegments(profile, 5.0); segs != nil {
		t.Fatalf("expected nil for a single-sample profile, got %v", segs)
	}
}
