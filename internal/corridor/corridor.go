// Package corridor extracts the buffered road sub-graph around a route:
// decode the route polyline, expand its bbox by buffer_m, query the edge
// store, and assemble a deduplicated node/edge pack keyed by corridor_key.
package corridor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
	"github.com/ecodiatate/roam-bundle-engine/internal/edges"
	"github.com/ecodiatate/roam-bundle-engine/internal/geo"
)

// Extractor builds and caches corridor graph packs.
type Extractor struct {
	store       *cache.Store
	edgeStore   edges.Store
	algoVersion string
}

func New(store *cache.Store, edgeStore edges.Store, algoVersion string) *Extractor {
	return &Extractor{store: store, edgeStore: edgeStore, algoVersion: algoVersion}
}

// EnsureResult is the outcome of Ensure: either a cache hit or a freshly
// built pack, plus its corridor_key.
type EnsureResult struct {
	CorridorKey string
	Pack        domain.CorridorGraphPack
	FromCache   bool
}

// Ensure returns the corridor graph pack for routeKey/polyline/profile/
// buffer/maxEdges, building and persisting it if not already cached.
func (e *Extractor) Ensure(ctx context.Context, routeKey, routePolyline6, profile string, bufferM, maxEdges int) (EnsureResult, error) {
	if maxEdges <= 0 {
		maxEdges = 350000
	}
	corridorKey, err := codec.CorridorKey(routeKey, bufferM, maxEdges, profile, e.algoVersion)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("corridor: key: %w", err)
	}

	if blob, ok, err := e.store.GetPackBytes(ctx, cache.KindCorridor, corridorKey); err != nil {
		return EnsureResult{}, fmt.Errorf("corridor: cache read: %w", err)
	} else if ok {
		pack, err := decodeCorridorPack(blob)
		if err != nil {
			return EnsureResult{}, fmt.Errorf("corridor: decode cached pack: %w", err)
		}
		return EnsureResult{CorridorKey: corridorKey, Pack: pack, FromCache: true}, nil
	}

	pts := codec.Polyline6Decode(routePolyline6)
	if len(pts) < 2 {
		pack := domain.CorridorGraphPack{
			CorridorKey: corridorKey,
			RouteKey:    routeKey,
			Profile:     profile,
			AlgoVersion: e.algoVersion,
		}
		if err := e.store.PutPack(ctx, cache.KindCorridor, corridorKey, e.algoVersion, pack); err != nil {
			return EnsureResult{}, fmt.Errorf("corridor: persist empty pack: %w", err)
		}
		return EnsureResult{CorridorKey: corridorKey, Pack: pack}, nil
	}

	tightBBox := geo.BBoxFromPoints(pts)
	bbox := geo.ExpandBBox(tightBBox, float64(bufferM))

	rows, err := e.edgeStore.QueryBBox(ctx, bbox, maxEdges)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("corridor: query edges: %w", err)
	}

	pack := assemblePack(corridorKey, routeKey, profile, e.algoVersion, bbox, rows)
	if err := e.store.PutPack(ctx, cache.KindCorridor, corridorKey, e.algoVersion, pack); err != nil {
		return EnsureResult{}, fmt.Errorf("corridor: persist pack: %w", err)
	}
	return EnsureResult{CorridorKey: corridorKey, Pack: pack}, nil
}

// assemblePack dedups nodes by id and builds the flag bitmask per edge.
func assemblePack(corridorKey, routeKey, profile, algoVersion string, bbox domain.BBox, rows []domain.EdgeRow) domain.CorridorGraphPack {
	nodeSeen := make(map[int64]struct{}, len(rows)*2)
	var nodes []domain.CorridorNode
	addNode := func(id int64, lat, lng float64) {
		if _, ok := nodeSeen[id]; ok {
			return
		}
		nodeSeen[id] = struct{}{}
		nodes = append(nodes, domain.CorridorNode{ID: id, Lat: lat, Lng: lng})
	}

	edgesOut := make([]domain.CorridorEdge, 0, len(rows))
	for _, r := range rows {
		addNode(r.FromID, r.FromLat, r.FromLng)
		addNode(r.ToID, r.ToLat, r.ToLng)

		flags := 0
		if r.Toll != 0 {
			flags |= domain.FlagToll
		}
		if r.Ferry != 0 {
			flags |= domain.FlagFerry
		}
		if r.Unsealed != 0 {
			flags |= domain.FlagUnsealed
		}
		edgesOut = append(edgesOut, domain.CorridorEdge{
			A:         r.FromID,
			B:         r.ToID,
			DistanceM: int64(r.DistM),
			DurationS: int64(r.CostS),
			Flags:     flags,
		})
	}

	return domain.CorridorGraphPack{
		CorridorKey: corridorKey,
		RouteKey:    routeKey,
		Profile:     profile,
		AlgoVersion: algoVersion,
		BBox:        bbox,
		Nodes:       nodes,
		Edges:       edgesOut,
	}
}

func decodeCorridorPack(blob []byte) (domain.CorridorGraphPack, error) {
	var pack domain.CorridorGraphPack
	if err := json.Unmarshal(blob, &pack); err != nil {
		return domain.CorridorGraphPack{}, err
	}
	return pack, nil
}
