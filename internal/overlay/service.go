package overlay

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// Service is the overlay fan-out's cache-fronted entry point: GetTraffic and
// GetHazards serve a fresh cached pack when one exists within
// OverlaysCacheSeconds, otherwise poll every relevant source, cache the
// result, and return it.
type Service struct {
	store              *cache.Store
	fanout             *Fanout
	trafficAlgoVersion string
	hazardsAlgoVersion string
	cacheSeconds       int
	pollTimeout        time.Duration
}

func NewService(store *cache.Store, client *http.Client, traffic []TrafficSource, hazards []HazardSource, trafficAlgoVersion, hazardsAlgoVersion string, cacheSeconds int, pollTimeout time.Duration) *Service {
	return &Service{
		store:              store,
		fanout:             NewFanout(client, traffic, hazards),
		trafficAlgoVersion: trafficAlgoVersion,
		hazardsAlgoVersion: hazardsAlgoVersion,
		cacheSeconds:       cacheSeconds,
		pollTimeout:        pollTimeout,
	}
}

// GetTraffic returns the cached or freshly-polled traffic overlay pack for
// bbox.
func (s *Service) GetTraffic(ctx context.Context, bbox domain.BBox) (domain.TrafficPack, error) {
	now := time.Now().UTC()
	activeStates := stateStrings(OverlappingStates(bbox))
	key, err := codec.TrafficKey(bbox, activeStates, s.trafficAlgoVersion)
	if err != nil {
		return domain.TrafficPack{}, err
	}
	if pack, ok, err := s.cachedTraffic(ctx, key, now); err != nil {
		return domain.TrafficPack{}, err
	} else if ok {
		return pack, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()
	events, _, warnings := s.fanout.PollTraffic(pollCtx, bbox, now)
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	pack := domain.TrafficPack{
		TrafficKey:  key,
		Events:      events,
		Warnings:    warnings,
		Provider:    "overlay-fanout",
		CreatedAt:   now.Format(time.RFC3339Nano),
		AlgoVersion: s.trafficAlgoVersion,
	}
	if err := s.store.PutPack(ctx, cache.KindTraffic, key, s.trafficAlgoVersion, pack); err != nil {
		return domain.TrafficPack{}, err
	}
	return pack, nil
}

// GetHazards returns the cached or freshly-polled hazards overlay pack for
// bbox.
func (s *Service) GetHazards(ctx context.Context, bbox domain.BBox) (domain.HazardPack, error) {
	now := time.Now().UTC()
	activeStates := stateStrings(OverlappingStates(bbox))
	key, err := codec.HazardsKey(bbox, activeStates, s.hazardsAlgoVersion)
	if err != nil {
		return domain.HazardPack{}, err
	}
	if pack, ok, err := s.cachedHazards(ctx, key, now); err != nil {
		return domain.HazardPack{}, err
	} else if ok {
		return pack, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()
	events, _, warnings := s.fanout.PollHazards(pollCtx, bbox, now)
	sort.Slice(events, func(i, j int) bool {
		if events[i].EffectivePriority != events[j].EffectivePriority {
			return events[i].EffectivePriority > events[j].EffectivePriority
		}
		return events[i].ID < events[j].ID
	})
	pack := domain.HazardPack{
		HazardsKey:  key,
		Events:      events,
		Warnings:    warnings,
		Provider:    "overlay-fanout",
		CreatedAt:   now.Format(time.RFC3339Nano),
		AlgoVersion: s.hazardsAlgoVersion,
	}
	if err := s.store.PutPack(ctx, cache.KindHazard, key, s.hazardsAlgoVersion, pack); err != nil {
		return domain.HazardPack{}, err
	}
	return pack, nil
}

func (s *Service) cachedTraffic(ctx context.Context, key string, now time.Time) (domain.TrafficPack, bool, error) {
	blob, ok, err := s.store.GetPackBytes(ctx, cache.KindTraffic, key)
	if err != nil || !ok {
		return domain.TrafficPack{}, false, err
	}
	var pack domain.TrafficPack
	if err := json.Unmarshal(blob, &pack); err != nil {
		return domain.TrafficPack{}, false, err
	}
	if !isFresh(pack.CreatedAt, now, s.cacheSeconds) {
		return domain.TrafficPack{}, false, nil
	}
	return pack, true, nil
}

func (s *Service) cachedHazards(ctx context.Context, key string, now time.Time) (domain.HazardPack, bool, error) {
	blob, ok, err := s.store.GetPackBytes(ctx, cache.KindHazard, key)
	if err != nil || !ok {
		return domain.HazardPack{}, false, err
	}
	var pack domain.HazardPack
	if err := json.Unmarshal(blob, &pack); err != nil {
		return domain.HazardPack{}, false, err
	}
	if !isFresh(pack.CreatedAt, now, s.cacheSeconds) {
		return domain.HazardPack{}, false, nil
	}
	return pack, true, nil
}

func isFresh(createdAt string, now time.Time, cacheSeconds int) bool {
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return false
	}
	return now.Sub(t) <= time.Duration(cacheSeconds)*time.Second
}

func stateStrings(states []StateCode) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
