package routing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// Service is the cache-fronted entry point the orchestrator calls: Ensure
// returns the cached NavRoute for req's route_key, or calls out to the
// routing engine and persists the result (nav_packs is keyed by route_key
// directly, so no separate route_key derivation step is needed beyond
// what Client.Route already computes).
type Service struct {
	store  *cache.Store
	client *Client
}

func NewService(store *cache.Store, client *Client) *Service {
	return &Service{store: store, client: client}
}

// Ensure returns the cached route for req if present, else routes and
// caches it under nav_packs.
func (s *Service) Ensure(ctx context.Context, req domain.NavRequest) (domain.NavRoute, error) {
	routeKey, err := codec.RouteKey(req, s.client.AlgoVersion)
	if err != nil {
		return domain.NavRoute{}, fmt.Errorf("routing: route key: %w", err)
	}

	if blob, ok, err := s.store.GetPackBytes(ctx, cache.KindNav, routeKey); err != nil {
		return domain.NavRoute{}, fmt.Errorf("routing: cache read: %w", err)
	} else if ok {
		var route domain.NavRoute
		if err := json.Unmarshal(blob, &route); err != nil {
			return domain.NavRoute{}, fmt.Errorf("routing: decode cached route: %w", err)
		}
		return route, nil
	}

	route, err := s.client.Route(ctx, req)
	if err != nil {
		return domain.NavRoute{}, err
	}
	if err := s.store.PutPack(ctx, cache.KindNav, route.RouteKey, route.AlgoVersion, route); err != nil {
		return domain.NavRoute{}, fmt.Errorf("routing: persist route: %w", err)
	}
	return route, nil
}
