// Package server is the composition root: it owns every service's
// lifecycle (construction through shutdown) explicitly rather than via
// package-level singletons. The client-facing HTTP router lives
// elsewhere; Run exposes only liveness and metrics surfaces on top of
// the full corridor/POI/overlay/bundle dependency graph.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundle"
	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/cache/invalidation"
	"github.com/ecodiatate/roam-bundle-engine/internal/cache/redisstore"
	"github.com/ecodiatate/roam-bundle-engine/internal/config"
	"github.com/ecodiatate/roam-bundle-engine/internal/corridor"
	"github.com/ecodiatate/roam-bundle-engine/internal/edges"
	"github.com/ecodiatate/roam-bundle-engine/internal/elevation"
	"github.com/ecodiatate/roam-bundle-engine/internal/guide"
	"github.com/ecodiatate/roam-bundle-engine/internal/health"
	"github.com/ecodiatate/roam-bundle-engine/internal/httpclient"
	"github.com/ecodiatate/roam-bundle-engine/internal/metrics"
	"github.com/ecodiatate/roam-bundle-engine/internal/orchestrator"
	"github.com/ecodiatate/roam-bundle-engine/internal/overlay"
	"github.com/ecodiatate/roam-bundle-engine/internal/places"
	"github.com/ecodiatate/roam-bundle-engine/internal/routing"
)

// Services bundles every constructed component the orchestrator composes,
// plus the pieces Run needs to shut down cleanly.
type Services struct {
	Store        *cache.Store
	EdgeStore    edges.Store
	Redis        *redisstore.Client
	Orchestrator *orchestrator.Orchestrator
	Elevation    *elevation.Wrapper
	Guide        guide.Companion
	Metrics      *metrics.Provider
	// Invalidation is nil when no Kafka brokers are configured.
	Invalidation *invalidation.Consumer
}

// Build constructs the full dependency graph from cfg: cache store, edge
// store adapter, POI engine (with its Overpass client and optional Redis
// remote pool), overlay fan-out, routing and elevation wrappers, bundle
// assembler, and the orchestrator that ties C4-C9 together.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Services, error) {
	store, err := cache.Open(cfg.CacheDBPath, 4096)
	if err != nil {
		return nil, err
	}

	edgeStore, err := edges.Open(ctx, edges.Config{DatabaseURL: cfg.EdgesDatabaseURL, SQLitePath: cfg.EdgesDBPath})
	if err != nil {
		store.Close()
		return nil, err
	}

	metricsProvider := metrics.Init(metrics.Config{Enabled: true})

	var redisClient *redisstore.Client
	if cfg.RedisAddr != "" {
		redisClient, err = redisstore.New(ctx, cfg.RedisAddr, metricsProvider.NewRemotePoolMetrics())
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; POI remote pool tier disabled")
			redisClient = nil
		}
	}

	overpassClient := places.NewOverpassClient(cfg.OverpassURL, httpclient.NewOutboundWithTimeout(timeSeconds(cfg.OverpassTimeoutS)), cfg.OverpassTimeoutS, cfg.OverpassRetryBaseS, cfg.OverpassRetries)
	remotePool := places.NewRemotePool(redisClient)
	placesEngine := places.NewEngine(store, remotePool, overpassClient, places.EngineConfig{
		AlgoVersion:         cfg.PlacesAlgoVersion,
		TileStepDeg:         cfg.PlacesTileStepDeg,
		MaxTiles:            cfg.PlacesMaxTiles,
		HardCap:             cfg.PlacesHardCap,
		LocalSatisfyRatio:   cfg.PlacesLocalSatisfyRatio,
		TileTTLS:            cfg.PlacesTileTTLS,
		TimeBudgetS:         cfg.PlacesTimeBudgetS,
		MaxOverpassPerReq:   cfg.PlacesMaxOverpassPerReq,
		SampleIntervalKmDef: cfg.PlacesSampleIntervalKmDef,
		BufferKmDef:         cfg.PlacesBufferKmDef,
	})

	qldCache := overlay.NewQLDMergeCache()
	trafficSources := overlay.BuildTrafficSources(cfg, qldCache)
	hazardSources := overlay.BuildHazardSources(cfg)
	overlayClient := httpclient.NewOutboundWithTimeout(timeSeconds(cfg.OverlaysTimeoutS))
	overlayService := overlay.NewService(store, overlayClient, trafficSources, hazardSources, cfg.TrafficAlgoVersion, cfg.HazardsAlgoVersion, cfg.OverlaysCacheSeconds, timeSeconds(cfg.OverlaysTimeoutS))

	corridorExtractor := corridor.New(store, edgeStore, cfg.CorridorAlgoVersion)

	routingClient := routing.NewClient(cfg.RoutingURL, cfg.RoutingProfile, httpclient.NewOutboundWithTimeout(timeSeconds(cfg.RoutingTimeoutS)), cfg.AlgoVersion)
	routingService := routing.NewService(store, routingClient)

	elevationClient := elevation.NewClient(cfg.ElevationURL, httpclient.NewOutboundWithTimeout(timeSeconds(cfg.ElevationTimeoutS)), cfg.ElevationBatchSize)
	elevationWrapper := elevation.NewWrapper(elevationClient)

	assembler := bundle.New(store)

	orch := orchestrator.New(routingService, corridorExtractor, placesEngine, overlayService, assembler, cfg.CorridorBufferMDefault, cfg.CorridorMaxEdgesDefault)

	var invalidator *invalidation.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		invalidator = invalidation.New(invalidation.Config{
			Brokers:             cfg.KafkaBrokers,
			Topic:               cfg.KafkaInvalidationTopic,
			GroupID:             cfg.KafkaGroupID,
			InitialOffsetOldest: true,
		}, logger, store)
	}

	return &Services{
		Store:        store,
		EdgeStore:    edgeStore,
		Redis:        redisClient,
		Orchestrator: orch,
		Elevation:    elevationWrapper,
		Guide:        guide.NewNoOp(cfg.LLMTimeoutS),
		Metrics:      metricsProvider,
		Invalidation: invalidator,
	}, nil
}

func (s *Services) Close() {
	if s.EdgeStore != nil {
		_ = s.EdgeStore.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Store != nil {
		_ = s.Store.Close()
	}
}

func timeSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Run builds the dependency graph, starts the liveness/metrics HTTP
// surface, and blocks until ctx is cancelled. The client-facing bundle API
// is a separate out-of-scope concern; Run's router only proves
// the composition root is live.
func Run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	svc, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if svc.Invalidation != nil {
		go func() {
			if err := svc.Invalidation.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("invalidation consumer exited")
			}
		}()
	}

	r := chi.NewRouter()
	r.Get("/healthz", health.Liveness())
	r.Handle("/metrics", svc.Metrics.Handler())

	httpTransportTimeout := 60 * time.Second
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      httpTransportTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
