package places

import (
	"context"
	"encoding/json"
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/ecodiatate/roam-bundle-engine/internal/cache/redisstore"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// remotePoolTTL is how long a resolved place stays in the shared Redis
// pool once written, long enough to serve other instances between
// Overpass top-ups without going stale across OSM edits.
const remotePoolTTL = 30 * 24 * time.Hour

// remoteChunkSize bounds how many keys a single MGet/SAdd round-trips.
const remoteChunkSize = 500

// poolCellRes is the H3 resolution the pool's spatial index is kept at;
// res-7 cells are roughly 5 km2, about right for roadside POI clusters.
const poolCellRes = 7

func poolCellKey(cell h3.Cell) string { return "cellidx:" + cell.String() }

// RemotePool is the read-through/write-behind wrapper around the shared
// Redis canonical pool tier. A nil *redisstore.Client degrades every call to a miss,
// so the engine runs without Redis configured.
type RemotePool struct {
	client *redisstore.Client
}

func NewRemotePool(client *redisstore.Client) *RemotePool {
	return &RemotePool{client: client}
}

// Get fetches already-resolved places for the given "osm:<type>:<id>"
// keys from the shared pool.
func (p *RemotePool) Get(ctx context.Context, osmIDs []string) ([]domain.PlaceItem, error) {
	if p.client == nil || len(osmIDs) == 0 {
		return nil, nil
	}

	var out []domain.PlaceItem
	for start := 0; start < len(osmIDs); start += remoteChunkSize {
		end := start + remoteChunkSize
		if end > len(osmIDs) {
			end = len(osmIDs)
		}
		chunk := osmIDs[start:end]

		values, err := p.client.MGet(ctx, chunk)
		if err != nil {
			return out, err
		}
		for _, raw := range values {
			var item domain.PlaceItem
			if err := json.Unmarshal(raw, &item); err == nil {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

// Put writes resolved places into the shared pool keyed by their OSM
// identity, chunked to bound round-trip size.
func (p *RemotePool) Put(ctx context.Context, items []domain.PlaceItem) error {
	if p.client == nil || len(items) == 0 {
		return nil
	}

	for start := 0; start < len(items); start += remoteChunkSize {
		end := start + remoteChunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		kv := make(map[string][]byte, len(chunk))
		for _, item := range chunk {
			raw, err := json.Marshal(item)
			if err != nil {
				continue
			}
			kv[item.ID] = raw
		}
		if len(kv) == 0 {
			continue
		}
		if err := p.client.MSetWithTTL(ctx, kv, remotePoolTTL); err != nil {
			return err
		}

		cells := make(map[string][]string)
		for _, item := range chunk {
			cell, err := h3.LatLngToCell(h3.NewLatLng(item.Lat, item.Lng), poolCellRes)
			if err != nil {
				continue
			}
			key := poolCellKey(cell)
			cells[key] = append(cells[key], item.ID)
		}
		for key, ids := range cells {
			if err := p.client.SAdd(ctx, key, remotePoolTTL, ids...); err != nil {
				return err
			}
		}
	}
	return nil
}

// ItemsNearPoints returns pool items whose H3 cell (or an immediate
// neighbour, so cell-boundary items aren't missed) covers any of the given
// (lat, lng) points. Corridor searches use this to supplement the external
// result set with places other instances have already resolved.
func (p *RemotePool) ItemsNearPoints(ctx context.Context, pts [][2]float64) ([]domain.PlaceItem, error) {
	if p.client == nil || len(pts) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var keys []string
	for _, pt := range pts {
		cell, err := h3.LatLngToCell(h3.NewLatLng(pt[0], pt[1]), poolCellRes)
		if err != nil {
			continue
		}
		disk, err := h3.GridDisk(cell, 1)
		if err != nil {
			disk = []h3.Cell{cell}
		}
		for _, c := range disk {
			key := poolCellKey(c)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	ids, err := p.client.SMembersUnion(ctx, keys)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return p.Get(ctx, ids)
}

// MarkTileSeen records a tile key in the shared pool's tile-seen set so
// other instances skip re-fetching a tile this instance already covered
// (best-effort; errors are not fatal to a search).
func (p *RemotePool) MarkTileSeen(ctx context.Context, setKey, tileKey string, ttl time.Duration) error {
	if p.client == nil {
		return nil
	}
	return p.client.SAdd(ctx, setKey, ttl, tileKey)
}

// IndexTile records which OSM ids live in a tile, so a later top-up of the
// same tile by any instance can skip Overpass and read straight from the
// shared pool.
func (p *RemotePool) IndexTile(ctx context.Context, tileKey string, osmIDs []string, ttl time.Duration) error {
	if p.client == nil || len(osmIDs) == 0 {
		return nil
	}
	return p.client.SAdd(ctx, tileIndexKey(tileKey), ttl, osmIDs...)
}

// ItemsForTile returns the places previously indexed under tileKey by any
// instance, or nil if the tile has never been resolved into the pool.
func (p *RemotePool) ItemsForTile(ctx context.Context, tileKey string) ([]domain.PlaceItem, error) {
	if p.client == nil {
		return nil, nil
	}
	ids, err := p.client.SMembersUnion(ctx, []string{tileIndexKey(tileKey)})
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return p.Get(ctx, ids)
}

func tileIndexKey(tileKey string) string { return "tileidx:" + tileKey }
