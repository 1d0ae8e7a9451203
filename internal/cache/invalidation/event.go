// Package invalidation consumes upstream-change events from Kafka and
// drops the affected cached packs and tile-ledger rows, so every engine
// instance converges after an edges-graph reimport, an OSM extract
// refresh, or an operator-published purge without waiting for TTLs.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// Event is one upstream-change notification. A refresh names either the
// pack keys to drop or, for the places layer, a bbox whose tile-ledger
// rows should be treated as stale; a purge drops the whole layer.
type Event struct {
	Version int          `json:"version"`
	Op      string       `json:"op"`    // refresh | purge
	Layer   string       `json:"layer"` // nav | corridor | places | traffic | hazards
	TS      time.Time    `json:"ts"`
	Keys    []string     `json:"keys,omitempty"`
	BBox    *domain.BBox `json:"bbox,omitempty"`
}

var layerKinds = map[string]cache.PackKind{
	"nav":      cache.KindNav,
	"corridor": cache.KindCorridor,
	"places":   cache.KindPlaces,
	"traffic":  cache.KindTraffic,
	"hazards":  cache.KindHazard,
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "refresh", "purge":
	default:
		return fmt.Errorf("op must be refresh|purge")
	}
	if _, ok := layerKinds[strings.TrimSpace(e.Layer)]; !ok {
		return fmt.Errorf("layer must be one of nav|corridor|places|traffic|hazards")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Op == "refresh" && len(e.Keys) == 0 && e.BBox == nil {
		return fmt.Errorf("refresh requires keys or bbox")
	}
	if e.BBox != nil {
		if e.Layer != "places" {
			return fmt.Errorf("bbox is only meaningful for the places tile ledger")
		}
		bb := *e.BBox
		if !(bb.MinLng >= -180 && bb.MaxLng <= 180 && bb.MinLat >= -90 && bb.MaxLat <= 90) {
			return fmt.Errorf("bbox out of range")
		}
		if !(bb.MaxLng > bb.MinLng && bb.MaxLat > bb.MinLat) {
			return fmt.Errorf("bbox must satisfy max > min on both axes")
		}
	}
	return nil
}
