// Package orchestrator drives a full bundle build: it validates the
// caller's plan, ensures the route and corridor, fans POI search and both
// overlay polls out across a cooperative window via errgroup, and hands
// the results to the bundle assembler.
package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundle"
	"github.com/ecodiatate/roam-bundle-engine/internal/bundleerr"
	"github.com/ecodiatate/roam-bundle-engine/internal/corridor"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
	"github.com/ecodiatate/roam-bundle-engine/internal/overlay"
	"github.com/ecodiatate/roam-bundle-engine/internal/places"
	"github.com/ecodiatate/roam-bundle-engine/internal/routing"
)

// DefaultCategories is the POI category set used for offline bundles when
// the caller doesn't narrow it.
var DefaultCategories = []string{
	string(domain.CategoryFuel), string(domain.CategoryToilets), string(domain.CategoryWater),
	string(domain.CategoryCampsite), string(domain.CategoryCaravanPark), string(domain.CategoryTown),
	string(domain.CategorySupermarket), string(domain.CategoryMechanic), string(domain.CategoryHospital),
	string(domain.CategoryPharmacy), string(domain.CategoryCafe), string(domain.CategoryRestaurant),
	string(domain.CategoryFastFood), string(domain.CategoryPub),
	string(domain.CategoryHotel), string(domain.CategoryMotel), string(domain.CategoryHostel),
	string(domain.CategoryLookout), string(domain.CategoryNationalPark), string(domain.CategoryBeach),
}

const defaultPlacesLimit = 8000

// Orchestrator is the composition root for a bundle build: it owns
// references to every dependency component rather than reaching for
// package-level singletons.
type Orchestrator struct {
	routing  *routing.Service
	corridor *corridor.Extractor
	places   *places.Engine
	overlay  *overlay.Service
	bundle   *bundle.Assembler

	defaultBufferM  int
	defaultMaxEdges int
}

func New(routingSvc *routing.Service, corridorExt *corridor.Extractor, placesEngine *places.Engine, overlaySvc *overlay.Service, assembler *bundle.Assembler, defaultBufferM, defaultMaxEdges int) *Orchestrator {
	return &Orchestrator{
		routing:         routingSvc,
		corridor:        corridorExt,
		places:          placesEngine,
		overlay:         overlaySvc,
		bundle:          assembler,
		defaultBufferM:  defaultBufferM,
		defaultMaxEdges: defaultMaxEdges,
	}
}

// BuildRequest is the caller-supplied plan for one offline bundle.
type BuildRequest struct {
	PlanID     string
	Nav        domain.NavRequest
	Styles     []string
	BufferM    int
	MaxEdges   int
	Categories []string
	Limit      int
	// SkipPOI/SkipOverlays let a caller build a lighter bundle (e.g. a
	// route-only preview) without paying for the heavier fan-outs.
	SkipPOI      bool
	SkipOverlays bool
}

// fanoutResult collects the three independent outcomes the cooperative
// window gathers once the corridor is known.
type fanoutResult struct {
	places   domain.PlacesPack
	havePOI  bool
	traffic  domain.TrafficPack
	haveTrfc bool
	hazards  domain.HazardPack
	haveHzrd bool
}

// BuildBundle validates req, ensures the route and corridor, runs POI
// search and both overlay polls concurrently over the corridor bbox, and
// persists a manifest referencing every produced pack.
func (o *Orchestrator) BuildBundle(ctx context.Context, req BuildRequest) (domain.OfflineBundleManifest, error) {
	if req.PlanID == "" {
		return domain.OfflineBundleManifest{}, bundleerr.BadRequest("plan_id required")
	}
	if len(req.Nav.Stops) < 2 {
		return domain.OfflineBundleManifest{}, bundleerr.BadRequest("stops must contain at least 2 points")
	}

	bufferM := req.BufferM
	if bufferM <= 0 {
		bufferM = o.defaultBufferM
	}
	maxEdges := req.MaxEdges
	if maxEdges <= 0 {
		maxEdges = o.defaultMaxEdges
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPlacesLimit
	}
	categories := req.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	route, err := o.routing.Ensure(ctx, req.Nav)
	if err != nil {
		return domain.OfflineBundleManifest{}, err
	}

	corridorResult, err := o.corridor.Ensure(ctx, route.RouteKey, route.Geometry, route.Profile, bufferM, maxEdges)
	if err != nil {
		return domain.OfflineBundleManifest{}, err
	}
	bbox := corridorResult.Pack.BBox

	fr, err := o.runFanout(ctx, req, bbox, categories, limit)
	if err != nil {
		return domain.OfflineBundleManifest{}, err
	}

	manifestInput := bundle.ManifestInput{
		PlanID:   req.PlanID,
		RouteKey: route.RouteKey,
		Styles:   req.Styles,
		NavReady: true,
		Corridor: bundle.AssetInput{Key: corridorResult.CorridorKey, Ready: true},
	}
	if fr.havePOI {
		manifestInput.Places = bundle.AssetInput{Key: fr.places.PlacesKey, Ready: true}
	}
	if fr.haveTrfc {
		manifestInput.Traffic = bundle.AssetInput{Key: fr.traffic.TrafficKey, Ready: true}
	}
	if fr.haveHzrd {
		manifestInput.Hazards = bundle.AssetInput{Key: fr.hazards.HazardsKey, Ready: true}
	}

	return o.bundle.BuildManifest(ctx, manifestInput)
}

// DownloadBundle retrieves planID's manifest and packages every
// referenced pack into a zip archive, delegating
// entirely to the bundle assembler once the plan_id is resolved.
func (o *Orchestrator) DownloadBundle(ctx context.Context, planID string) (bundle.ZipResult, error) {
	if planID == "" {
		return bundle.ZipResult{}, bundleerr.BadRequest("plan_id required")
	}
	return o.bundle.BuildZip(ctx, planID)
}

// runFanout dispatches POI search and both overlay polls as concurrent
// child tasks within one cooperative window: each
// dependency handles its own resilience/timeout, so the parent task only
// aggregates results and propagates the first hard failure.
func (o *Orchestrator) runFanout(ctx context.Context, req BuildRequest, bbox domain.BBox, categories []string, limit int) (fanoutResult, error) {
	var placesPack domain.PlacesPack
	var trafficPack domain.TrafficPack
	var hazardPack domain.HazardPack

	g, gctx := errgroup.WithContext(ctx)

	if !req.SkipPOI {
		g.Go(func() error {
			pack, err := o.places.Search(gctx, domain.PlacesRequest{
				BBox:       &bbox,
				Categories: categories,
				Limit:      limit,
			})
			if err != nil {
				return fmt.Errorf("orchestrator: poi search: %w", err)
			}
			placesPack = pack
			return nil
		})
	}

	if !req.SkipOverlays {
		g.Go(func() error {
			pack, err := o.overlay.GetTraffic(gctx, bbox)
			if err != nil {
				return fmt.Errorf("orchestrator: traffic poll: %w", err)
			}
			trafficPack = pack
			return nil
		})
		g.Go(func() error {
			pack, err := o.overlay.GetHazards(gctx, bbox)
			if err != nil {
				return fmt.Errorf("orchestrator: hazards poll: %w", err)
			}
			hazardPack = pack
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fanoutResult{}, err
	}

	return fanoutResult{
		places:   placesPack,
		havePOI:  !req.SkipPOI,
		traffic:  trafficPack,
		haveTrfc: !req.SkipOverlays,
		hazards:  hazardPack,
		haveHzrd: !req.SkipOverlays,
	}, nil
}
