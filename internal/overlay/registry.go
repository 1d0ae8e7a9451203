package overlay

import (
	"context"
	"net/http"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// TrafficSource is one registry entry for a per-jurisdiction traffic feed:
// name, how to fetch it, and how to parse the fetched bytes into the
// unified event model.
type TrafficSource interface {
	Name() string
	State() StateCode
	Enabled() bool
	Fetch(ctx context.Context, client *http.Client) ([][]byte, error)
	Parse(payloads [][]byte, now time.Time) ([]domain.TrafficEvent, error)
}

// HazardSource is the hazard-feed equivalent of TrafficSource.
type HazardSource interface {
	Name() string
	State() StateCode
	Enabled() bool
	Fetch(ctx context.Context, client *http.Client) ([]byte, error)
	Parse(payload []byte, now time.Time) ([]domain.HazardEvent, error)
}

// doGet issues a single timed GET and returns the response body.
func doGet(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, httpStatusError(resp.StatusCode, url)
	}
	return readAll(resp.Body)
}
