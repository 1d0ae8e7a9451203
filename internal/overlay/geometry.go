package overlay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// geomSignature returns a short deterministic fingerprint of a geometry
// value, used as one input to StableID when an upstream id is absent.
func geomSignature(geom any) string {
	if geom == nil {
		return ""
	}
	b, err := json.Marshal(geom)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// qldGeometryBBox derives a bbox from a raw GeoJSON-shaped coordinates
// value (Point/LineString/Polygon/MultiLineString nesting), used by feeds
// that hand back bare geometry objects rather than a typed GeoJSON value.
func qldGeometryBBox(geomType string, coordinates []any) (domain.BBox, bool) {
	minLng, minLat := math.Inf(1), math.Inf(1)
	maxLng, maxLat := math.Inf(-1), math.Inf(-1)
	found := false
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			if len(t) >= 2 {
				if lng, ok1 := toFloat(t[0]); ok1 {
					if lat, ok2 := toFloat(t[1]); ok2 && isCoordPair(t) {
						found = true
						if lng < minLng {
							minLng = lng
						}
						if lng > maxLng {
							maxLng = lng
						}
						if lat < minLat {
							minLat = lat
						}
						if lat > maxLat {
							maxLat = lat
						}
						return
					}
				}
			}
			for _, el := range t {
				walk(el)
			}
		}
	}
	walk(coordinates)
	if !found {
		return domain.BBox{}, false
	}
	return domain.BBox{MinLng: minLng, MinLat: minLat, MaxLng: maxLng, MaxLat: maxLat}, true
}

// isCoordPair reports whether v looks like a [lng, lat] leaf (two or three
// numeric elements) rather than a nested ring/line.
func isCoordPair(v []any) bool {
	if len(v) < 2 || len(v) > 3 {
		return false
	}
	for _, el := range v {
		if _, ok := toFloat(el); !ok {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
