// Package elevation wraps the external elevation lookup:
// sample a polyline at a fixed spacing, batch the samples to an
// Open-Elevation-compatible point-list API, and derive ascent/descent
// stats plus fixed-length grade segments for fuel-range estimation.
// Shares internal/geo's polyline-sampling algorithm with the POI engine's
// corridor top-up.
package elevation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundleerr"
)

// Client batches (lat, lng) lookups to an elevation service that accepts
// {"locations":[{"latitude":.., "longitude":..}, ...]} and returns
// {"results":[{"elevation":..}, ...]} in request order.
type Client struct {
	URL        string
	HTTPClient *http.Client
	BatchSize  int
}

func NewClient(url string, httpClient *http.Client, batchSize int) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Client{URL: url, HTTPClient: httpClient, BatchSize: batchSize}
}

type lookupLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type lookupRequest struct {
	Locations []lookupLocation `json:"locations"`
}

type lookupResult struct {
	Elevation *float64 `json:"elevation"`
}

type lookupResponse struct {
	Results []lookupResult `json:"results"`
}

// FetchElevations returns elevation in metres for each (lat, lng) pair in
// latlngs, in the same order, batching requests at c.BatchSize.
func (c *Client) FetchElevations(ctx context.Context, latlngs [][2]float64) ([]float64, error) {
	out := make([]float64, 0, len(latlngs))
	for start := 0; start < len(latlngs); start += c.BatchSize {
		end := start + c.BatchSize
		if end > len(latlngs) {
			end = len(latlngs)
		}
		batch := latlngs[start:end]

		req := lookupRequest{Locations: make([]lookupLocation, len(batch))}
		for i, ll := range batch {
			req.Locations[i] = lookupLocation{Latitude: ll[0], Longitude: ll[1]}
		}
		body, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("elevation: marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("elevation: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(httpReq)
		if err != nil {
			return nil, bundleerr.Wrap(bundleerr.CodeServiceUnavailable, err, "elevation service unreachable")
		}
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, bundleerr.ServiceUnavailable("elevation service returned %d: %s", resp.StatusCode, truncate(respBody, 300))
		}
		if readErr != nil {
			return nil, fmt.Errorf("elevation: read response: %w", readErr)
		}

		var parsed lookupResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, bundleerr.Wrap(bundleerr.CodeServiceUnavailable, err, "elevation service returned malformed response")
		}
		if len(parsed.Results) != len(batch) {
			return nil, bundleerr.ServiceUnavailable("elevation service returned %d results, expected %d", len(parsed.Results), len(batch))
		}
		for _, r := range parsed.Results {
			if r.Elevation != nil {
				out = append(out, *r.Elevation)
			} else {
				out = append(out, 0)
			}
		}
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
