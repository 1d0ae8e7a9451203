package elevation

import (
	"context"
	"math"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundleerr"
	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
	"github.com/ecodiatate/roam-bundle-engine/internal/geo"
)

// Wrapper builds full elevation profiles from route geometry.
type Wrapper struct {
	client *Client
}

func NewWrapper(client *Client) *Wrapper {
	return &Wrapper{client: client}
}

// Profile samples polyline6 at sampleIntervalM spacing, fetches elevation
// for every sample, and computes aggregate ascent/descent stats.
func (w *Wrapper) Profile(ctx context.Context, polyline6 string, sampleIntervalM float64) (domain.ElevationProfile, error) {
	pts := codec.Polyline6Decode(polyline6)
	if len(pts) < 2 {
		return domain.ElevationProfile{}, bundleerr.BadRequest("need at least 2 points to build an elevation profile")
	}

	samples := geo.SamplePolyline(pts, sampleIntervalM)
	if len(samples) == 0 {
		return domain.ElevationProfile{}, bundleerr.BadRequest("failed to sample route")
	}

	latlngs := make([][2]float64, len(samples))
	for i, s := range samples {
		latlngs[i] = [2]float64{s.Lat, s.Lng}
	}
	elevations, err := w.client.FetchElevations(ctx, latlngs)
	if err != nil {
		return domain.ElevationProfile{}, err
	}

	out := make([]domain.ElevationSample, len(samples))
	for i, s := range samples {
		out[i] = domain.ElevationSample{
			Lat:         round(s.Lat, 6),
			Lng:         round(s.Lng, 6),
			KmFromStart: round(s.AlongM/1000.0, 2),
			ElevationM:  round(elevations[i], 1),
		}
	}

	minM, maxM := out[0].ElevationM, out[0].ElevationM
	var ascent, descent float64
	for i, s := range out {
		if s.ElevationM < minM {
			minM = s.ElevationM
		}
		if s.ElevationM > maxM {
			maxM = s.ElevationM
		}
		if i == 0 {
			continue
		}
		diff := s.ElevationM - out[i-1].ElevationM
		if diff > 0 {
			ascent += diff
		} else {
			descent += -diff
		}
	}

	return domain.ElevationProfile{
		Samples:       out,
		MinM:          round(minM, 1),
		MaxM:          round(maxM, 1),
		TotalAscentM:  round(ascent, 1),
		TotalDescentM: round(descent, 1),
	}, nil
}

func round(v float64, n int) float64 {
	scale := math.Pow(10, float64(n))
	return math.Round(v*scale) / scale
}
