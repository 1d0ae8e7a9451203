package codec

import (
	"math"
	"testing"
)

func TestPolyline6RoundTrip(t *testing.T) {
	coords := []Point{
		{Lat: -27.470125, Lng: 153.021072},
		{Lat: -27.500000, Lng: 153.050000},
		{Lat: -27.600000, Lng: 152.900000},
	}
	encoded := Polyline6Encode(coords)
	if encoded == "" {
		t.Fatalf("encode produced an empty string")
	}
	decoded := Polyline6Decode(encoded)
	if len(decoded) != len(coords) {
		t.Fatalf("decoded %d points, want %d", len(decoded), len(coords))
	}
	for i := range coords {
		if math.Abs(decoded[i].Lat-coords[i].Lat) > 1e-6 {
			t.Errorf("point %d lat = %v, want %v", i, decoded[i].Lat, coords[i].Lat)
		}
		if math.Abs(decoded[i].Lng-coords[i].Lng) > 1e-6 {
			t.Errorf("point %d lng = %v, want %v", i, decoded[i].Lng, coords[i].Lng)
		}
	}
}

func TestPolyline6RoundTripIsExactForRoundedInputs(t *testing.T) {
	coords := []Point{
		{Lat: -27.470125, Lng: 153.021072},
		{Lat: 0, Lng: 0},
		{Lat: 35.5, Lng: -120.25},
	}
	decoded := Polyline6Decode(Polyline6Encode(coords))
	for i := range coords {
		if decoded[i] != coords[i] {
			t.Errorf("point %d = %+v, want exactly %+v", i, decoded[i], coords[i])
		}
	}
}

func TestPolyline6EncodeEmpty(t *testing.T) {
	if s := Polyline6Encode(nil); s != "" {
		t.Errorf("encode(nil) = %q, want empty", s)
	}
	if pts := Polyline6Decode(""); pts != nil {
		t.Errorf("decode(\"\") = %v, want nil", pts)
	}
}

func TestPolyline6StabilityAcrossReencode(t *testing.T) {
	coords := []Point{
		{Lat: -27.47, Lng: 153.02},
		{Lat: -27.56, Lng: 151.95},
	}
	once := Polyline6Encode(coords)
	twice := Polyline6Encode(Polyline6Decode(once))
	if once != twice {
		t.Errorf("re-encoding a decoded polyline changed its bytes: %q vs %q", once, twice)
	}
}
