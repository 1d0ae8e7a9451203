package places

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundleerr"
	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
	"github.com/ecodiatate/roam-bundle-engine/internal/geo"
)

// Engine is the POI search entry point: Search resolves a bbox/radius
// request through the four-tier read-through, SearchCorridorPolyline
// resolves a route-shaped request with the tier order inverted.
type Engine struct {
	store    *cache.Store
	remote   *RemotePool
	overpass *OverpassClient

	algoVersion         string
	tileStepDeg         float64
	maxTiles            int
	hardCap             int
	localSatisfyRatio   float64
	tileTTLS            int64
	timeBudget          time.Duration
	maxOverpassPerReq   int
	sampleIntervalKmDef float64
	bufferKmDef         float64
}

type EngineConfig struct {
	AlgoVersion         string
	TileStepDeg         float64
	MaxTiles            int
	HardCap             int
	LocalSatisfyRatio   float64
	TileTTLS            int64
	TimeBudgetS         float64
	MaxOverpassPerReq   int
	SampleIntervalKmDef float64
	BufferKmDef         float64
}

func NewEngine(store *cache.Store, remote *RemotePool, overpass *OverpassClient, cfg EngineConfig) *Engine {
	return &Engine{
		store:               store,
		remote:              remote,
		overpass:            overpass,
		algoVersion:         cfg.AlgoVersion,
		tileStepDeg:         cfg.TileStepDeg,
		maxTiles:            cfg.MaxTiles,
		hardCap:             cfg.HardCap,
		localSatisfyRatio:   cfg.LocalSatisfyRatio,
		tileTTLS:            cfg.TileTTLS,
		timeBudget:          time.Duration(cfg.TimeBudgetS * float64(time.Second)),
		maxOverpassPerReq:   cfg.MaxOverpassPerReq,
		sampleIntervalKmDef: cfg.SampleIntervalKmDef,
		bufferKmDef:         cfg.BufferKmDef,
	}
}

// Search resolves req into a PlacesPack via pack cache -> local canonical
// table -> remote shared pool -> external Overpass top-up, returning as
// soon as the local-satisfy_ratio threshold is met.
func (e *Engine) Search(ctx context.Context, req domain.PlacesRequest) (domain.PlacesPack, error) {
	bbox, err := requestBBox(req)
	if err != nil {
		return domain.PlacesPack{}, err
	}
	limit := req.Limit
	if limit <= 0 || limit > e.hardCap {
		limit = e.hardCap
	}

	key, err := codec.PlacesKey(req, e.algoVersion)
	if err != nil {
		return domain.PlacesPack{}, fmt.Errorf("places: key: %w", err)
	}
	if pack, ok, err := e.cachedPack(ctx, key); err != nil {
		return domain.PlacesPack{}, err
	} else if ok {
		return pack, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeBudget)
	defer cancel()

	items, err := e.resolveBBox(ctx, bbox, req.Categories, limit)
	if err != nil {
		return domain.PlacesPack{}, err
	}

	pack := domain.PlacesPack{
		PlacesKey:   key,
		Req:         req,
		Items:       items,
		Provider:    "places-engine",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		AlgoVersion: e.algoVersion,
	}
	if err := e.store.PutPack(ctx, cache.KindPlaces, key, e.algoVersion, pack); err != nil {
		return domain.PlacesPack{}, fmt.Errorf("places: persist pack: %w", err)
	}
	return pack, nil
}

// SearchCorridorPolyline resolves a route-shaped request with the tier
// order inverted: the external query runs first, as a single
// around-polyline query over the sample chain, so a long route is covered
// end to end instead of whatever corner of its bbox a tile grid would
// reach first. The local table and shared pool then supplement the set.
func (e *Engine) SearchCorridorPolyline(ctx context.Context, polyline6 string, bufferKm float64, categories []string, limit int) (domain.PlacesPack, error) {
	if bufferKm <= 0 {
		bufferKm = e.bufferKmDef
	}
	if limit <= 0 || limit > e.hardCap {
		limit = e.hardCap
	}

	key, err := codec.CorridorPlacesKey(polyline6, bufferKm, categories, limit, e.algoVersion)
	if err != nil {
		return domain.PlacesPack{}, fmt.Errorf("places: corridor key: %w", err)
	}
	if pack, ok, err := e.cachedPack(ctx, key); err != nil {
		return domain.PlacesPack{}, err
	} else if ok {
		return pack, nil
	}

	pts := codec.Polyline6Decode(polyline6)
	if len(pts) < 2 {
		return domain.PlacesPack{}, bundleerr.BadRequest("places: corridor polyline has fewer than 2 points")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeBudget)
	defer cancel()

	intervalM := e.sampleIntervalKmDef * 1000
	samples := geo.SamplePolyline(pts, intervalM)
	// A route whose length implies far more interval crossings than were
	// actually emitted has degenerate geometry; fall back to decimating
	// the raw point list.
	if desired := int(samples[len(samples)-1].AlongM / intervalM); desired > 4*len(samples) {
		samples = geo.SamplesFromPoints(geo.DecimatePoints(pts, desired))
	}
	bufferM := bufferKm * 1000
	samplePts := make([][2]float64, len(samples))
	for i, s := range samples {
		samplePts[i] = [2]float64{s.Lat, s.Lng}
	}

	filters := FiltersForCategories(categories)
	if len(filters) == 0 {
		for _, fs := range categoryFilters {
			filters = append(filters, fs...)
		}
	}
	features, err := e.overpass.QueryAround(ctx, samplePts, bufferM, filters)
	if err != nil {
		return domain.PlacesPack{}, err
	}
	items := make([]domain.PlaceItem, 0, len(features))
	for _, f := range features {
		if item, ok := FeatureToPlaceItem(f, ""); ok {
			items = append(items, item)
		}
	}
	if err := e.store.UpsertPlacesItems(ctx, items); err != nil {
		return domain.PlacesPack{}, fmt.Errorf("places: upsert corridor results: %w", err)
	}
	if err := e.remote.Put(ctx, items); err != nil {
		return domain.PlacesPack{}, fmt.Errorf("places: write-behind to remote pool: %w", err)
	}

	// Local and remote tiers supplement the externally fetched set:
	// anything previously harvested inside the corridor's bbox, plus
	// places other instances resolved near these sample points.
	tightBBox := geo.BBoxFromPoints(pts)
	bbox := geo.ExpandBBox(tightBBox, bufferM)
	if local, lerr := e.store.QueryPlacesBBox(ctx, bbox, categories, limit); lerr == nil {
		items = append(items, local...)
	}
	if pooled, perr := e.remote.ItemsNearPoints(ctx, samplePts); perr == nil {
		items = append(items, filterByCategories(pooled, categories)...)
	}

	seen := make(map[string]struct{}, len(items))
	filtered := items[:0]
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		if geo.NearestSampleDistanceM(item.Lat, item.Lng, samples) <= bufferM {
			filtered = append(filtered, item)
		}
	}
	items = filtered
	if len(items) > limit {
		items = items[:limit]
	}

	pack := domain.PlacesPack{
		PlacesKey: key,
		Req: map[string]any{
			"polyline_sha256": codec.ContentHash([]byte(polyline6)),
			"buffer_km":       bufferKm,
			"categories":      categories,
			"limit":           limit,
		},
		Items:       items,
		Provider:    "places-engine",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		AlgoVersion: e.algoVersion,
	}
	if err := e.store.PutPack(ctx, cache.KindPlaces, key, e.algoVersion, pack); err != nil {
		return domain.PlacesPack{}, fmt.Errorf("places: persist corridor pack: %w", err)
	}
	return pack, nil
}

// SuggestAlongRoute samples polyline6 every sampleIntervalKm and runs an
// independent point+radius search around each sample, merging results.
func (e *Engine) SuggestAlongRoute(ctx context.Context, polyline6 string, radiusM float64, categories []string, limit int) ([]domain.PlaceItem, error) {
	pts := codec.Polyline6Decode(polyline6)
	if len(pts) < 2 {
		return nil, bundleerr.BadRequest("places: suggest_along_route polyline has fewer than 2 points")
	}
	if radiusM <= 0 {
		radiusM = e.bufferKmDef * 1000
	}
	samples := geo.SamplePolyline(pts, e.sampleIntervalKmDef*1000)

	seen := make(map[string]bool)
	var out []domain.PlaceItem
	for _, s := range samples {
		lat, lng := s.Lat, s.Lng
		req := domain.PlacesRequest{Lat: &lat, Lng: &lng, RadiusM: &radiusM, Categories: categories, Limit: limit}
		pack, err := e.Search(ctx, req)
		if err != nil {
			return out, err
		}
		for _, item := range pack.Items {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			out = append(out, item)
		}
	}
	return out, nil
}

// resolveBBox runs the read-through tiers over bbox: local table first,
// tiled Overpass top-up only when the local tier can't satisfy the limit.
func (e *Engine) resolveBBox(ctx context.Context, bbox domain.BBox, categories []string, limit int) ([]domain.PlaceItem, error) {
	local, err := e.store.QueryPlacesBBox(ctx, bbox, categories, limit)
	if err != nil {
		return nil, fmt.Errorf("places: local query: %w", err)
	}
	if satisfied(len(local), limit, e.localSatisfyRatio) {
		return local, nil
	}

	if err := e.topUpTiles(ctx, bbox, categories); err != nil {
		return local, err
	}
	return e.store.QueryPlacesBBox(ctx, bbox, categories, limit)
}

func filterByCategories(items []domain.PlaceItem, categories []string) []domain.PlaceItem {
	if len(categories) == 0 {
		return items
	}
	want := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		want[c] = struct{}{}
	}
	out := make([]domain.PlaceItem, 0, len(items))
	for _, it := range items {
		if _, ok := want[string(it.Category)]; ok {
			out = append(out, it)
		}
	}
	return out
}

func satisfied(have, limit int, ratio float64) bool {
	if limit <= 0 {
		return true
	}
	return float64(have) >= float64(limit)*ratio
}

// topUpTiles subdivides bbox into the fixed-degree grid and, for each
// tile not already fresh in the local table, checks the remote shared
// pool before falling through to Overpass, writing resolved items back
// into both tiers.
func (e *Engine) topUpTiles(ctx context.Context, bbox domain.BBox, categories []string) error {
	tiles := SubdivideBBox(bbox, e.tileStepDeg, e.maxTiles)
	filters := FiltersForCategories(categories)
	if len(filters) == 0 {
		for _, fs := range categoryFilters {
			filters = append(filters, fs...)
		}
	}

	dispatched := 0
	for _, tile := range tiles {
		if dispatched >= e.maxOverpassPerReq {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fresh, err := e.store.TileIsFresh(ctx, tile.Key, e.tileTTLS)
		if err != nil {
			return fmt.Errorf("places: tile freshness check: %w", err)
		}
		if fresh {
			continue
		}

		if items, err := e.remote.ItemsForTile(ctx, tile.Key); err == nil && len(items) > 0 {
			if err := e.store.UpsertPlacesItems(ctx, items); err != nil {
				return fmt.Errorf("places: upsert from remote pool: %w", err)
			}
			if err := e.store.MarkTileFetched(ctx, tile.Key, tile.BBox, categories, len(items)); err != nil {
				return fmt.Errorf("places: mark tile fetched: %w", err)
			}
			continue
		}

		dispatched++
		features, err := e.overpass.QueryBBox(ctx, tile.BBox, filters)
		if err != nil {
			return err
		}

		items := make([]domain.PlaceItem, 0, len(features))
		ids := make([]string, 0, len(features))
		for _, f := range features {
			item, ok := FeatureToPlaceItem(f, "")
			if !ok {
				continue
			}
			items = append(items, item)
			ids = append(ids, item.ID)
		}

		if err := e.store.UpsertPlacesItems(ctx, items); err != nil {
			return fmt.Errorf("places: upsert overpass results: %w", err)
		}
		if err := e.store.MarkTileFetched(ctx, tile.Key, tile.BBox, categories, len(items)); err != nil {
			return fmt.Errorf("places: mark tile fetched: %w", err)
		}
		if err := e.remote.Put(ctx, items); err != nil {
			return fmt.Errorf("places: write-behind to remote pool: %w", err)
		}
		if err := e.remote.IndexTile(ctx, tile.Key, ids, time.Duration(e.tileTTLS)*time.Second); err != nil {
			return fmt.Errorf("places: index tile in remote pool: %w", err)
		}
	}
	return nil
}

func (e *Engine) cachedPack(ctx context.Context, key string) (domain.PlacesPack, bool, error) {
	blob, ok, err := e.store.GetPackBytes(ctx, cache.KindPlaces, key)
	if err != nil || !ok {
		return domain.PlacesPack{}, false, err
	}
	var pack domain.PlacesPack
	if err := json.Unmarshal(blob, &pack); err != nil {
		return domain.PlacesPack{}, false, fmt.Errorf("places: decode cached pack: %w", err)
	}
	return pack, true, nil
}

func requestBBox(req domain.PlacesRequest) (domain.BBox, error) {
	if req.BBox != nil {
		return *req.BBox, nil
	}
	if req.Lat != nil && req.Lng != nil {
		radius := 2000.0
		if req.RadiusM != nil && *req.RadiusM > 0 {
			radius = *req.RadiusM
		}
		return geo.BBoxForRadius(*req.Lat, *req.Lng, radius), nil
	}
	return domain.BBox{}, bundleerr.BadRequest("places request requires either bbox or lat/lng")
}
