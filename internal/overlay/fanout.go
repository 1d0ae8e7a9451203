package overlay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// Fanout dispatches a poll across every overlapping state's registered
// sources plus the national feeds, in parallel, never failing the whole
// poll on a single source's error.
type Fanout struct {
	client  *http.Client
	traffic []TrafficSource
	hazards []HazardSource
}

func NewFanout(client *http.Client, traffic []TrafficSource, hazards []HazardSource) *Fanout {
	return &Fanout{client: client, traffic: traffic, hazards: hazards}
}

// PollTraffic dispatches every enabled traffic source whose state overlaps
// bbox, merges the results, prunes expired events, applies geometry
// admission, and dedups by stable id.
func (f *Fanout) PollTraffic(ctx context.Context, bbox domain.BBox, now time.Time) ([]domain.TrafficEvent, []string, []string) {
	overlapping := OverlappingStates(bbox)
	active := make(map[StateCode]struct{}, len(overlapping))
	activeStates := make([]string, 0, len(overlapping))
	for _, s := range overlapping {
		active[s] = struct{}{}
		activeStates = append(activeStates, string(s))
	}

	var targets []TrafficSource
	var warnings []string
	for _, src := range f.traffic {
		if _, ok := active[src.State()]; !ok {
			continue
		}
		if !src.Enabled() {
			warnings = append(warnings, fmt.Sprintf("traffic:%s skipped — %s not configured", src.State(), src.Name()))
			continue
		}
		targets = append(targets, src)
	}

	var mu sync.Mutex
	var events []domain.TrafficEvent
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range targets {
		src := src
		g.Go(func() error {
			payloads, err := src.Fetch(gctx, f.client)
			if err != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("%s: fetch failed: %v", src.Name(), err))
				mu.Unlock()
				return nil
			}
			parsed, err := src.Parse(payloads, now)
			if err != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("%s: parse failed: %v", src.Name(), err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			events = append(events, parsed...)
			mu.Unlock()
			return nil
		})
	}
	// Per-source failures are captured as warnings above; g.Wait() only
	// returns non-nil if a source goroutine panics into a real error path,
	// which none of the above do (errors are swallowed into warnings).
	_ = g.Wait()

	admitted := make([]domain.TrafficEvent, 0, len(events))
	for _, e := range events {
		if IsExpired(e.EndAt, now) {
			continue
		}
		if !AdmitByGeometry(e.BBox, bbox) {
			continue
		}
		admitted = append(admitted, e)
	}
	return DedupTraffic(admitted), activeStates, warnings
}

// PollHazards dispatches every enabled hazard source whose state overlaps
// bbox (plus national sources, which have an empty State()), merges the
// results (each parser has already set the CAP composite priority), prunes
// expired events, applies geometry admission, and dedups by stable id.
func (f *Fanout) PollHazards(ctx context.Context, bbox domain.BBox, now time.Time) ([]domain.HazardEvent, []string, []string) {
	overlapping := OverlappingStates(bbox)
	active := make(map[StateCode]struct{}, len(overlapping))
	activeStates := make([]string, 0, len(overlapping))
	for _, s := range overlapping {
		active[s] = struct{}{}
		activeStates = append(activeStates, string(s))
	}

	var targets []HazardSource
	var warnings []string
	for _, src := range f.hazards {
		if src.State() != "" {
			if _, ok := active[src.State()]; !ok {
				continue
			}
		}
		if !src.Enabled() {
			warnings = append(warnings, fmt.Sprintf("hazards:%s skipped — %s not configured", src.State(), src.Name()))
			continue
		}
		targets = append(targets, src)
	}

	var mu sync.Mutex
	var events []domain.HazardEvent
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range targets {
		src := src
		g.Go(func() error {
			payload, err := src.Fetch(gctx, f.client)
			if err != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("%s: fetch failed: %v", src.Name(), err))
				mu.Unlock()
				return nil
			}
			parsed, err := src.Parse(payload, now)
			if err != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("%s: parse failed: %v", src.Name(), err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			events = append(events, parsed...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	admitted := make([]domain.HazardEvent, 0, len(events))
	for _, e := range events {
		if IsExpired(e.EndAt, now) {
			continue
		}
		if !AdmitByGeometry(e.BBox, bbox) {
			continue
		}
		admitted = append(admitted, e)
	}
	return DedupHazards(admitted), activeStates, warnings
}
