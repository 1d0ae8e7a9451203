package overlay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// rssHazardSource parses a Bureau of Meteorology warnings RSS 2.0 feed for
// one state. BOM's feeds are plain-text titled items with no geometry or
// CAP fields, so kind and severity come entirely from keyword
// classification and urgency/certainty are always unknown. gofeed tolerates the UTF-8 BOM some BOM feeds
// ship ahead of the XML declaration, which encoding/xml rejects outright;
// the reason this feed uses gofeed instead of the CAP-AU decoder.
type rssHazardSource struct {
	name, url string
	state     StateCode
	enabled   bool
}

func NewRSSHazardSource(name, url string, state StateCode, enabled bool) HazardSource {
	return &rssHazardSource{name: name, url: url, state: state, enabled: enabled}
}

func (s *rssHazardSource) Name() string     { return s.name }
func (s *rssHazardSource) State() StateCode { return s.state }
func (s *rssHazardSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *rssHazardSource) Fetch(ctx context.Context, client *http.Client) ([]byte, error) {
	return doGet(ctx, client, s.url, map[string]string{"Accept": "application/rss+xml, application/xml, text/xml"})
}

func (s *rssHazardSource) Parse(payload []byte, now time.Time) ([]domain.HazardEvent, error) {
	fp := gofeed.NewParser()
	feed, err := fp.ParseString(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: decode rss: %w", s.name, err)
	}
	out := make([]domain.HazardEvent, 0, len(feed.Items))
	for _, item := range feed.Items {
		ev, ok := rssItemToHazard(s.name, string(s.state), item, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func rssItemToHazard(source, region string, item *gofeed.Item, now time.Time) (domain.HazardEvent, bool) {
	headline := item.Title
	desc := item.Description
	var issuedAt *string
	if item.PublishedParsed != nil {
		s := item.PublishedParsed.UTC().Format(time.RFC3339)
		issuedAt = &s
	}
	// BOM warnings carry no explicit expiry; they're treated as current
	// until superseded by the next poll, so no expiry-based pruning here.
	kind := classifyHazardKeyword(headline, desc)
	sev := classifySeverityKeywordAsHazard(headline, desc)
	upstreamID := item.GUID
	if upstreamID == "" {
		upstreamID = item.Link
	}
	return domain.HazardEvent{
		ID:                StableID(source, source, upstreamID, headline, derefStr(issuedAt), ""),
		Source:            source,
		Kind:              kind,
		Severity:          sev,
		Headline:          headline,
		Description:       desc,
		URL:               item.Link,
		IssuedAt:          issuedAt,
		StartAt:           issuedAt,
		Region:            region,
		Raw:               item,
		Urgency:           domain.CapUrgencyUnknown,
		Certainty:         domain.CapCertaintyUnknown,
		EffectivePriority: EffectivePriority(sev, domain.CapUrgencyUnknown, domain.CapCertaintyUnknown),
	}, true
}

func classifySeverityKeywordAsHazard(headline, description string) domain.HazardSeverity {
	switch classifySeverityKeyword(headline, description) {
	case domain.TrafficSevSevere:
		return domain.HazardSevSevere
	case domain.TrafficSevMajor:
		return domain.HazardSevModerate
	case domain.TrafficSevMinor:
		return domain.HazardSevMinor
	default:
		return domain.HazardSevUnknown
	}
}
