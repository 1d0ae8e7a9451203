// Package routing wraps the external routing engine: submits
// an ordered waypoint list, receives a polyline6 geometry plus per-leg
// turn-by-turn steps, and normalises OSRM-flavoured maneuvers into the
// closed vocabulary in internal/domain.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundleerr"
	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
	"github.com/ecodiatate/roam-bundle-engine/internal/geo"
)

// Client calls an OSRM-compatible routing engine over HTTP.
type Client struct {
	BaseURL     string
	Profile     string
	HTTPClient  *http.Client
	AlgoVersion string
}

func NewClient(baseURL, profile string, httpClient *http.Client, algoVersion string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Profile:     profile,
		HTTPClient:  httpClient,
		AlgoVersion: algoVersion,
	}
}

// osrmResponse is the subset of an OSRM /route/v1 response this wrapper
// consumes. geometries=polyline6 is requested explicitly, so the route and
// step geometries arrive already in this module's native wire format,
// no GeoJSON conversion needed.
type osrmResponse struct {
	Code    string      `json:"code"`
	Routes  []osrmRoute `json:"routes"`
	Message string      `json:"message"`
}

type osrmRoute struct {
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Geometry string    `json:"geometry"`
	Legs     []osrmLeg `json:"legs"`
}

type osrmLeg struct {
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Steps    []osrmStep `json:"steps"`
}

type osrmStep struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Geometry string       `json:"geometry"`
	Name     string       `json:"name"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmManeuver struct {
	Type          string    `json:"type"`
	Modifier      string    `json:"modifier"`
	Location      []float64 `json:"location"`
	BearingBefore float64   `json:"bearing_before"`
	BearingAfter  float64   `json:"bearing_after"`
	Exit          *int      `json:"exit"`
}

// Route submits req's ordered stops to the routing engine and returns the
// normalised primary route. Unknown maneuver types coerce to "turn";
// unknown modifiers become the empty modifier.
func (c *Client) Route(ctx context.Context, req domain.NavRequest) (domain.NavRoute, error) {
	if len(req.Stops) < 2 {
		return domain.NavRoute{}, bundleerr.BadRequest("stops must contain at least 2 points")
	}

	coordParts := make([]string, len(req.Stops))
	for i, s := range req.Stops {
		coordParts[i] = fmt.Sprintf("%g,%g", s.Lng, s.Lat)
	}
	profile := req.Profile
	if profile == "" {
		profile = c.Profile
	}
	u := fmt.Sprintf("%s/route/v1/%s/%s", c.BaseURL, profile, strings.Join(coordParts, ";"))

	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "polyline6")
	q.Set("steps", "true")
	q.Set("annotations", "distance,duration,speed")
	q.Set("alternatives", "false")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return domain.NavRoute{}, fmt.Errorf("routing: build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return domain.NavRoute{}, bundleerr.Wrap(bundleerr.CodeServiceUnavailable, err, "routing engine unreachable")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode != http.StatusOK {
		return domain.NavRoute{}, bundleerr.ServiceUnavailable("routing engine returned %d: %s", resp.StatusCode, truncate(body, 500))
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.NavRoute{}, bundleerr.Wrap(bundleerr.CodeServiceUnavailable, err, "routing engine returned malformed response")
	}
	if len(parsed.Routes) == 0 {
		return domain.NavRoute{}, bundleerr.ServiceUnavailable("routing engine returned no routes")
	}

	best := parsed.Routes[0]
	if best.Geometry == "" {
		return domain.NavRoute{}, bundleerr.ServiceUnavailable("routing engine returned empty geometry")
	}

	pts := codec.Polyline6Decode(best.Geometry)
	bbox := geo.BBoxFromPoints(pts)

	legs := make([]domain.NavLeg, len(best.Legs))
	for i, leg := range best.Legs {
		legs[i] = parseLeg(leg)
	}

	routeKey, err := codec.RouteKey(req, c.AlgoVersion)
	if err != nil {
		return domain.NavRoute{}, fmt.Errorf("routing: route key: %w", err)
	}

	return domain.NavRoute{
		RouteKey:    routeKey,
		Profile:     profile,
		DistanceM:   best.Distance,
		DurationS:   best.Duration,
		Geometry:    best.Geometry,
		BBox:        bbox,
		Legs:        legs,
		Provider:    "osrm",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		AlgoVersion: c.AlgoVersion,
	}, nil
}

func parseLeg(leg osrmLeg) domain.NavLeg {
	steps := make([]domain.NavStep, len(leg.Steps))
	for i, s := range leg.Steps {
		steps[i] = domain.NavStep{
			Maneuver:  parseManeuver(s.Maneuver),
			RoadName:  s.Name,
			DistanceM: s.Distance,
			DurationS: s.Duration,
			Geometry:  s.Geometry,
		}
	}
	return domain.NavLeg{
		DistanceM: leg.Distance,
		DurationS: leg.Duration,
		Geometry:  concatStepGeometries(steps),
		Steps:     steps,
	}
}

func parseManeuver(m osrmManeuver) domain.Maneuver {
	var loc [2]float64
	if len(m.Location) >= 2 {
		loc = [2]float64{m.Location[0], m.Location[1]}
	}
	return domain.Maneuver{
		Type:          domain.NormalizeManeuverType(m.Type),
		Modifier:      domain.NormalizeModifier(m.Modifier),
		Location:      loc,
		BearingBefore: m.BearingBefore,
		BearingAfter:  m.BearingAfter,
		Exit:          m.Exit,
	}
}

// concatStepGeometries rebuilds a leg's geometry by decoding every step's
// polyline6 and dropping the duplicated junction point shared between
// consecutive steps, then re-encoding the whole sequence.
func concatStepGeometries(steps []domain.NavStep) string {
	var all []codec.Point
	for i, step := range steps {
		if step.Geometry == "" {
			continue
		}
		pts := codec.Polyline6Decode(step.Geometry)
		if i == 0 {
			all = append(all, pts...)
		} else if len(pts) > 1 {
			all = append(all, pts[1:]...)
		}
	}
	if len(all) == 0 {
		return ""
	}
	return codec.Polyline6Encode(all)
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
