package places

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/go.geojson"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundleerr"
	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// OverpassClient queries an Overpass-style OSM API over a bbox, decoding
// the GeoJSON-flavoured response via paulmach/go.geojson.
type OverpassClient struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retries    int
	RetryBaseS float64
}

func NewOverpassClient(url string, httpClient *http.Client, timeoutS, retryBaseS float64, retries int) *OverpassClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OverpassClient{
		URL:        url,
		HTTPClient: httpClient,
		Timeout:    time.Duration(timeoutS * float64(time.Second)),
		Retries:    retries,
		RetryBaseS: retryBaseS,
	}
}

// retryableStatus is the set of HTTP statuses that warrant a retry.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// QueryBBox fetches every feature matching filters within bbox.
func (c *OverpassClient) QueryBBox(ctx context.Context, bbox domain.BBox, filters []overpassFilter) ([]*geojson.Feature, error) {
	return c.runQuery(ctx, buildOverpassQuery(bbox, filters))
}

// QueryAround fetches every feature matching filters within radiusM of
// the polyline described by samples, as one around-linestring query. This
// is the corridor search's external shape: a bbox-grid query over a long
// route would only ever cover its first tiles, biasing results toward one
// end.
func (c *OverpassClient) QueryAround(ctx context.Context, samples [][2]float64, radiusM float64, filters []overpassFilter) ([]*geojson.Feature, error) {
	return c.runQuery(ctx, buildOverpassAroundQuery(samples, radiusM, filters))
}

// runQuery posts one Overpass QL body, retrying transient failures with
// exponential backoff plus jitter (base RetryBaseS, factor 2, up to
// Retries attempts); the request's own timeout and the caller's context
// deadline both take precedence over the retry loop.
func (c *OverpassClient) runQuery(ctx context.Context, body string) ([]*geojson.Feature, error) {
	var lastErr error
	attempts := c.Retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := c.RetryBaseS * pow2(attempt-1)
			jitter := wait * (0.5 + rand.Float64()*0.5)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(jitter * float64(time.Second))):
			}
		}

		features, status, err := c.doRequest(ctx, body)
		if err == nil {
			return features, nil
		}
		lastErr = err
		if status != 0 && !retryableStatus(status) {
			break
		}
	}
	return nil, bundleerr.ServiceUnavailable("overpass query failed after %d attempts: %v", attempts, lastErr)
}

func (c *OverpassClient) doRequest(ctx context.Context, body string) ([]*geojson.Feature, int, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.URL, bytes.NewBufferString(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("overpass returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(payload)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode overpass response: %w", err)
	}
	return fc.Features, resp.StatusCode, nil
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

// buildOverpassQuery renders an Overpass QL "data=" body matching any of
// filters within bbox's south,west,north,east envelope.
func buildOverpassQuery(bbox domain.BBox, filters []overpassFilter) string {
	var sb strings.Builder
	sb.WriteString("[out:json][timeout:25];(")
	bboxStr := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bbox.MinLat, bbox.MinLng, bbox.MaxLat, bbox.MaxLng)
	for _, f := range filters {
		for _, kind := range []string{"node", "way"} {
			fmt.Fprintf(&sb, "%s[\"%s\"=\"%s\"](%s);", kind, f.Key, f.Value, bboxStr)
		}
	}
	sb.WriteString(");out center;")
	return "data=" + sb.String()
}

// buildOverpassAroundQuery renders a QL body whose around clause carries
// the full sample chain, which Overpass treats as a linestring buffered by
// radiusM.
func buildOverpassAroundQuery(samples [][2]float64, radiusM float64, filters []overpassFilter) string {
	var chain strings.Builder
	fmt.Fprintf(&chain, "around:%.0f", radiusM)
	for _, s := range samples {
		fmt.Fprintf(&chain, ",%.6f,%.6f", s[0], s[1])
	}
	aroundStr := chain.String()

	var sb strings.Builder
	sb.WriteString("[out:json][timeout:60];(")
	for _, f := range filters {
		for _, kind := range []string{"node", "way"} {
			fmt.Fprintf(&sb, "%s[\"%s\"=\"%s\"](%s);", kind, f.Key, f.Value, aroundStr)
		}
	}
	sb.WriteString(");out center;")
	return "data=" + sb.String()
}

// FeatureToPlaceItem converts a decoded Overpass feature into a PlaceItem,
// classifying its tags and synthesizing a display name when it carries no
// identifying tag.
func FeatureToPlaceItem(f *geojson.Feature, locality string) (domain.PlaceItem, bool) {
	lat, lng, ok := featureCenter(f)
	if !ok {
		return domain.PlaceItem{}, false
	}

	tags := make(map[string]string, len(f.Properties))
	for k, v := range f.Properties {
		if s, ok := v.(string); ok {
			tags[k] = s
		}
	}

	category := ClassifyTags(tags)
	name := tags["name"]
	extra := map[string]any{}
	for k, v := range f.Properties {
		extra[k] = v
	}
	if name == "" {
		name = tags["brand"]
	}
	if name == "" {
		name = tags["operator"]
	}
	if name == "" {
		name = SyntheticName(category, locality)
		extra["synthetic_name"] = true
	}

	osmType, osmID := featureOSMIdentity(f.ID, f.Geometry)
	id := cache.FormatOSMIdentity(osmType, osmID)

	return domain.PlaceItem{
		ID:       id,
		Name:     name,
		Lat:      lat,
		Lng:      lng,
		Category: category,
		Extra:    extra,
	}, true
}

// featureOSMIdentity extracts the OSM element type and numeric id from a
// feature's id, which arrives either as a bare JSON number or as a
// "node/123"-style string. A numeric id with non-point geometry must have
// come from a way.
func featureOSMIdentity(raw any, geom *geojson.Geometry) (string, int64) {
	osmType := "node"
	if geom != nil && !geom.IsPoint() {
		osmType = "way"
	}
	switch v := raw.(type) {
	case float64:
		return osmType, int64(v)
	case string:
		if t, rest, ok := strings.Cut(v, "/"); ok {
			if t == "node" || t == "way" || t == "relation" {
				osmType = t
			}
			n, _ := strconv.ParseInt(rest, 10, 64)
			return osmType, n
		}
		n, _ := strconv.ParseInt(v, 10, 64)
		return osmType, n
	default:
		return osmType, 0
	}
}

func featureCenter(f *geojson.Feature) (float64, float64, bool) {
	if f.Geometry == nil {
		return 0, 0, false
	}
	switch {
	case f.Geometry.IsPoint():
		return f.Geometry.Point[1], f.Geometry.Point[0], true
	case f.Geometry.IsLineString():
		pts := f.Geometry.LineString
		if len(pts) == 0 {
			return 0, 0, false
		}
		mid := pts[len(pts)/2]
		return mid[1], mid[0], true
	case f.Geometry.IsPolygon():
		rings := f.Geometry.Polygon
		if len(rings) == 0 || len(rings[0]) == 0 {
			return 0, 0, false
		}
		var sumLat, sumLng float64
		for _, p := range rings[0] {
			sumLng += p[0]
			sumLat += p[1]
		}
		n := float64(len(rings[0]))
		return sumLat / n, sumLng / n, true
	default:
		return 0, 0, false
	}
}
