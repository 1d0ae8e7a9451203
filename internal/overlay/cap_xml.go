package overlay

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// capAlert and capInfo decode a CAP-AU (Common Alerting Protocol, Australia
// profile) <alert> document.
type capAlert struct {
	XMLName xml.Name  `xml:"alert"`
	Sender  string    `xml:"sender"`
	Sent    string    `xml:"sent"`
	Infos   []capInfo `xml:"info"`
}

type capInfo struct {
	Event       string    `xml:"event"`
	Urgency     string    `xml:"urgency"`
	Severity    string    `xml:"severity"`
	Certainty   string    `xml:"certainty"`
	Headline    string    `xml:"headline"`
	Description string    `xml:"description"`
	Web         string    `xml:"web"`
	Effective   string    `xml:"effective"`
	Onset       string    `xml:"onset"`
	Expires     string    `xml:"expires"`
	Areas       []capArea `xml:"area"`
}

type capArea struct {
	AreaDesc string   `xml:"areaDesc"`
	Polygons []string `xml:"polygon"`
	Circles  []string `xml:"circle"`
}

type capXMLHazardSource struct {
	name, url string
	state     StateCode
	enabled   bool
}

func NewCapXMLHazardSource(name, url string, state StateCode, enabled bool) HazardSource {
	return &capXMLHazardSource{name: name, url: url, state: state, enabled: enabled}
}

func (s *capXMLHazardSource) Name() string     { return s.name }
func (s *capXMLHazardSource) State() StateCode { return s.state }
func (s *capXMLHazardSource) Enabled() bool    { return s.enabled && s.url != "" }

func (s *capXMLHazardSource) Fetch(ctx context.Context, client *http.Client) ([]byte, error) {
	return doGet(ctx, client, s.url, nil)
}

func (s *capXMLHazardSource) Parse(payload []byte, now time.Time) ([]domain.HazardEvent, error) {
	var alert capAlert
	if err := xml.Unmarshal(payload, &alert); err != nil {
		return nil, fmt.Errorf("%s: decode cap-au: %w", s.name, err)
	}
	out := make([]domain.HazardEvent, 0, len(alert.Infos))
	for _, info := range alert.Infos {
		ev, ok := capInfoToHazard(s.name, string(s.state), alert.Sender, alert.Sent, info, now)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func capInfoToHazard(source, region, sender, sent string, info capInfo, now time.Time) (domain.HazardEvent, bool) {
	endAt := nonEmptyPtr(info.Expires)
	if IsExpired(endAt, now) {
		return domain.HazardEvent{}, false
	}
	startAt := nonEmptyPtr(firstNonEmpty(info.Onset, info.Effective))
	sev := NormalizeHazardSeverity(info.Severity)
	urg := NormalizeCapUrgency(info.Urgency)
	cer := NormalizeCapCertainty(info.Certainty)
	kind := classifyHazardKeyword(info.Event+" "+info.Headline, info.Description)
	bbox, geomVal := capAreasBBox(info.Areas)
	headline := info.Headline
	if headline == "" {
		headline = info.Event
	}
	areaDesc := ""
	if len(info.Areas) > 0 {
		areaDesc = info.Areas[0].AreaDesc
	}
	return domain.HazardEvent{
		ID:                StableID(source, source, sender+"|"+sent, headline, derefStr(startAt), geomSignature(geomVal)),
		Source:            source,
		Kind:              kind,
		Severity:          sev,
		Headline:          headline,
		Description:       info.Description,
		URL:               info.Web,
		IssuedAt:          nonEmptyPtr(sent),
		StartAt:           startAt,
		EndAt:             endAt,
		Geometry:          geomVal,
		BBox:              bbox,
		Region:            firstNonEmpty(areaDesc, region),
		Raw:               info,
		Urgency:           urg,
		Certainty:         cer,
		EffectivePriority: EffectivePriority(sev, urg, cer),
	}, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// capAreasBBox parses CAP's space-separated "lat,lng lat,lng ..." polygon
// and "lat,lng radius" circle encodings.
func capAreasBBox(areas []capArea) (*domain.BBox, any) {
	var coords [][]float64
	for _, a := range areas {
		for _, poly := range a.Polygons {
			coords = append(coords, parseCapPoints(poly)...)
		}
		for _, circ := range a.Circles {
			pts := parseCapPoints(circ)
			coords = append(coords, pts...)
		}
	}
	if len(coords) == 0 {
		return nil, nil
	}
	b := domain.BBox{MinLng: coords[0][0], MaxLng: coords[0][0], MinLat: coords[0][1], MaxLat: coords[0][1]}
	for _, c := range coords[1:] {
		if c[0] < b.MinLng {
			b.MinLng = c[0]
		}
		if c[0] > b.MaxLng {
			b.MaxLng = c[0]
		}
		if c[1] < b.MinLat {
			b.MinLat = c[1]
		}
		if c[1] > b.MaxLat {
			b.MaxLat = c[1]
		}
	}
	return &b, coords
}

// parseCapPoints parses CAP's "lat,lng lat,lng ..." whitespace-separated
// coordinate pair encoding into [lng, lat] pairs.
func parseCapPoints(s string) [][]float64 {
	var out [][]float64
	for _, tok := range strings.Fields(s) {
		parts := strings.SplitN(tok, ",", 2)
		if len(parts) != 2 {
			continue
		}
		var lat, lng float64
		if _, err := fmt.Sscanf(parts[0], "%f", &lat); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(parts[1], "%f", &lng); err != nil {
			continue
		}
		out = append(out, []float64{lng, lat})
	}
	return out
}
