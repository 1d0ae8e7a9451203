// Package geo implements the bbox/distance/sampling math shared by the
// corridor extractor, the POI engine's corridor top-up, and the elevation
// wrapper. One implementation, three call sites, so the sampling
// behaviour can never drift between them.
package geo

import (
	"math"

	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

const earthRadiusM = 6_371_000.0

// MetresToDegreesLat converts a metre buffer to a latitude delta in degrees.
func MetresToDegreesLat(m float64) float64 {
	return m / 111_320.0
}

// MetresToDegreesLng converts a metre buffer to a longitude delta in degrees
// at the given latitude, using a cosine floor of 0.2 so the conversion
// stays sane near the poles.
func MetresToDegreesLng(m, atLat float64) float64 {
	cosv := math.Cos(atLat * math.Pi / 180)
	if cosv < 0.2 {
		cosv = 0.2
	}
	return m / (111_320.0 * cosv)
}

// ExpandBBox grows a bbox by bufferM metres, latitude-aware, using the
// bbox's own mid-latitude for the longitude conversion.
func ExpandBBox(b domain.BBox, bufferM float64) domain.BBox {
	midLat := (b.MinLat + b.MaxLat) / 2
	dlat := MetresToDegreesLat(bufferM)
	dlng := MetresToDegreesLng(bufferM, midLat)
	return domain.BBox{
		MinLng: b.MinLng - dlng,
		MinLat: b.MinLat - dlat,
		MaxLng: b.MaxLng + dlng,
		MaxLat: b.MaxLat + dlat,
	}
}

// BBoxFromPoints computes the tight bbox enclosing a coordinate sequence.
func BBoxFromPoints(pts []codec.Point) domain.BBox {
	if len(pts) == 0 {
		return domain.BBox{}
	}
	b := domain.BBox{MinLng: pts[0].Lng, MinLat: pts[0].Lat, MaxLng: pts[0].Lng, MaxLat: pts[0].Lat}
	for _, p := range pts[1:] {
		if p.Lng < b.MinLng {
			b.MinLng = p.Lng
		}
		if p.Lng > b.MaxLng {
			b.MaxLng = p.Lng
		}
		if p.Lat < b.MinLat {
			b.MinLat = p.Lat
		}
		if p.Lat > b.MaxLat {
			b.MaxLat = p.Lat
		}
	}
	return b
}

// BBoxForRadius builds a bbox around a centre point covering radiusM.
func BBoxForRadius(lat, lng, radiusM float64) domain.BBox {
	dlat := MetresToDegreesLat(radiusM)
	dlng := MetresToDegreesLng(radiusM, lat)
	return domain.BBox{MinLng: lng - dlng, MinLat: lat - dlat, MaxLng: lng + dlng, MaxLat: lat + dlat}
}

// HaversineM returns the great-circle distance in metres between two points.
func HaversineM(aLat, aLng, bLat, bLng float64) float64 {
	rlat1 := aLat * math.Pi / 180
	rlat2 := bLat * math.Pi / 180
	dlat := (bLat - aLat) * math.Pi / 180
	dlng := (bLng - aLng) * math.Pi / 180
	sa := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(sa), math.Sqrt(1-sa))
}

func interpolate(aLat, aLng, bLat, bLng, frac float64) (float64, float64) {
	return aLat + (bLat-aLat)*frac, aLng + (bLng-aLng)*frac
}

// Sample is one point emitted by SamplePolyline: its coordinate and the
// cumulative route distance (metres) at that point.
type Sample struct {
	Lat    float64
	Lng    float64
	AlongM float64
}

// SamplePolyline walks pts at fixed intervalM spacing, emitting a linearly
// interpolated point at every interval crossing plus the first and last
// decoded point. When the route's length divided by intervalM is far
// larger than the number of samples produced (degenerate input), callers
// fall back to decimating the raw point list instead (see DecimatePoints).
func SamplePolyline(pts []codec.Point, intervalM float64) []Sample {
	if len(pts) == 0 {
		return nil
	}
	if intervalM <= 0 {
		intervalM = 1
	}
	out := []Sample{{Lat: pts[0].Lat, Lng: pts[0].Lng, AlongM: 0}}
	cumulative := 0.0
	nextMark := intervalM

	for i := 1; i < len(pts); i++ {
		p0, p1 := pts[i-1], pts[i]
		seg := HaversineM(p0.Lat, p0.Lng, p1.Lat, p1.Lng)
		if seg < 1e-3 {
			continue
		}
		segStart := cumulative
		for nextMark <= cumulative+seg {
			frac := 0.0
			if seg > 0 {
				frac = (nextMark - segStart) / seg
			}
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			lat, lng := interpolate(p0.Lat, p0.Lng, p1.Lat, p1.Lng, frac)
			out = append(out, Sample{Lat: lat, Lng: lng, AlongM: nextMark})
			nextMark += intervalM
		}
		cumulative += seg
	}

	last := pts[len(pts)-1]
	lastOut := out[len(out)-1]
	if math.Abs(lastOut.Lat-last.Lat) > 1e-7 || math.Abs(lastOut.Lng-last.Lng) > 1e-7 {
		out = append(out, Sample{Lat: last.Lat, Lng: last.Lng, AlongM: cumulative})
	}
	return out
}

// SamplesFromPoints converts raw decoded points into samples carrying
// their cumulative route distance, used by the degenerate-input fallback
// where interval crossings cannot be trusted.
func SamplesFromPoints(pts []codec.Point) []Sample {
	out := make([]Sample, 0, len(pts))
	cumulative := 0.0
	for i, p := range pts {
		if i > 0 {
			cumulative += HaversineM(pts[i-1].Lat, pts[i-1].Lng, p.Lat, p.Lng)
		}
		out = append(out, Sample{Lat: p.Lat, Lng: p.Lng, AlongM: cumulative})
	}
	return out
}

// DecimatePoints picks every ceil(n/desired)-th point, used when
// SamplePolyline's output is implausibly sparse for the route's length.
func DecimatePoints(pts []codec.Point, desired int) []codec.Point {
	if desired <= 0 || len(pts) <= desired {
		return pts
	}
	step := (len(pts) + desired - 1) / desired
	out := make([]codec.Point, 0, desired+1)
	for i := 0; i < len(pts); i += step {
		out = append(out, pts[i])
	}
	last := pts[len(pts)-1]
	if out[len(out)-1] != last {
		out = append(out, last)
	}
	return out
}

// NearestSampleDistanceM returns the distance in metres from (lat,lng) to
// the closest of the given samples, short-circuiting once a sample is
// found within 500m.
func NearestSampleDistanceM(lat, lng float64, samples []Sample) float64 {
	best := math.MaxFloat64
	for _, s := range samples {
		d := HaversineM(lat, lng, s.Lat, s.Lng)
		if d < best {
			best = d
		}
		if best <= 500 {
			return best
		}
	}
	return best
}
