// Package places implements the POI engine: the four-tier
// read-through (pack cache, local canonical table, remote shared pool,
// external OSM-style query), tiled top-up over a bbox, and corridor-shaped
// top-up over a polyline.
package places

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// Tile is one cell of the fixed-degree grid a bbox is subdivided into for
// top-up purposes.
type Tile struct {
	Key  string
	BBox domain.BBox
}

// SubdivideBBox splits bbox into a grid of stepDeg-sided tiles, capped at
// maxTiles; tiles beyond the cap are simply not returned.
func SubdivideBBox(bbox domain.BBox, stepDeg float64, maxTiles int) []Tile {
	if stepDeg <= 0 {
		stepDeg = 0.15
	}
	// The epsilon keeps float noise (150.4-150.0 = 0.4000000000000057)
	// from adding a zero-width column or row of tiles.
	lngSteps := int(math.Ceil((bbox.MaxLng-bbox.MinLng)/stepDeg - 1e-9))
	latSteps := int(math.Ceil((bbox.MaxLat-bbox.MinLat)/stepDeg - 1e-9))
	if lngSteps < 1 {
		lngSteps = 1
	}
	if latSteps < 1 {
		latSteps = 1
	}

	var tiles []Tile
	for i := 0; i < lngSteps; i++ {
		for j := 0; j < latSteps; j++ {
			t := domain.BBox{
				MinLng: bbox.MinLng + float64(i)*stepDeg,
				MinLat: bbox.MinLat + float64(j)*stepDeg,
				MaxLng: math.Min(bbox.MinLng+float64(i+1)*stepDeg, bbox.MaxLng),
				MaxLat: math.Min(bbox.MinLat+float64(j+1)*stepDeg, bbox.MaxLat),
			}
			tiles = append(tiles, Tile{Key: TileKey(t, nil), BBox: t})
		}
	}
	if maxTiles > 0 && len(tiles) > maxTiles {
		tiles = tiles[:maxTiles]
	}
	return tiles
}

// TileKey builds a stable cache key for a tile plus an optional category
// filter set: grid coordinates followed by an xxhash digest of the sorted
// categories.
func TileKey(bbox domain.BBox, categories []string) string {
	cats := append([]string(nil), categories...)
	sort.Strings(cats)
	filterText := strings.Join(cats, ",")
	sum := xxhash.Sum64String(filterText)
	return fmt.Sprintf("tile:%.4f,%.4f,%.4f,%.4f:f=%016x", bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat, sum)
}
