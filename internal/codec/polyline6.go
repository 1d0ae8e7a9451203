// Package codec implements the content-addressed keying and wire codec
// shared by every cacheable pack: polyline6 encode/decode, canonical JSON,
// and the sha256-based content hash. Canonical output must stay
// byte-identical across implementations; it is the hinge every cache key
// hangs on.
package codec

import (
	"strings"
)

// Point is a (lat, lng) coordinate pair in WGS-84 decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

const polyline6Precision = 1_000_000

func encodeValue(v int64) string {
	if v < 0 {
		v = ^(v << 1)
	} else {
		v = v << 1
	}
	var b strings.Builder
	for v >= 0x20 {
		b.WriteByte(byte((0x20 | (v & 0x1F)) + 63))
		v >>= 5
	}
	b.WriteByte(byte(v + 63))
	return b.String()
}

// Polyline6Encode encodes a coordinate sequence into a Google-polyline
// compatible variable-length signed-delta string at 1e6 precision.
func Polyline6Encode(coords []Point) string {
	var out strings.Builder
	var lastLat, lastLng int64
	for _, c := range coords {
		ilat := round6(c.Lat)
		ilng := round6(c.Lng)
		out.WriteString(encodeValue(ilat - lastLat))
		out.WriteString(encodeValue(ilng - lastLng))
		lastLat = ilat
		lastLng = ilng
	}
	return out.String()
}

func round6(v float64) int64 {
	if v >= 0 {
		return int64(v*polyline6Precision + 0.5)
	}
	return int64(v*polyline6Precision - 0.5)
}

func decodeValue(s string, idx int) (int64, int) {
	var result int64
	var shift uint
	for {
		b := int64(s[idx]) - 63
		idx++
		result |= (b & 0x1F) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	var d int64
	if result&1 != 0 {
		d = ^(result >> 1)
	} else {
		d = result >> 1
	}
	return d, idx
}

// Polyline6Decode decodes a polyline6 string back into its coordinate
// sequence. decode(encode(coords)) must equal coords within 1e-6 degrees.
func Polyline6Decode(poly string) []Point {
	idx := 0
	var lat, lng int64
	var out []Point
	n := len(poly)
	for idx < n {
		dlat, next := decodeValue(poly, idx)
		idx = next
		dlng, next2 := decodeValue(poly, idx)
		idx = next2
		lat += dlat
		lng += dlng
		out = append(out, Point{
			Lat: float64(lat) / polyline6Precision,
			Lng: float64(lng) / polyline6Precision,
		})
	}
	return out
}
