package overlay

import (
	"github.com/ecodiatate/roam-bundle-engine/internal/config"
)

// BuildTrafficSources wires config.Config's per-state traffic feed entries
// into concrete TrafficSource implementations, one per registry Format
// value. qldCache must be shared across calls for a given process so the
// QLD full/delta merge stays warm between polls.
func BuildTrafficSources(cfg config.Config, qldCache *QLDMergeCache) []TrafficSource {
	var out []TrafficSource
	for _, ts := range cfg.TrafficSources {
		state := StateCode(ts.State)
		switch ts.Format {
		case "qld_v2":
			out = append(out, NewQLDSource(ts.URL, ts.DeltaURL, ts.APIKey, ts.Enabled, qldCache))
		case "geojson":
			headerKey, headerVal := "", ""
			if ts.APIKey != "" {
				headerKey, headerVal = "Authorization", "apikey "+ts.APIKey
			}
			out = append(out, NewGeoJSONTrafficSource(ts.State, ts.URL, state, ts.Enabled, headerKey, headerVal))
		case "arcgis":
			out = append(out, NewArcGISTrafficSource(ts.State, ts.URL, state, ts.Enabled, defaultArcGISTrafficFields))
		case "vendor_json":
			out = append(out, NewVendorJSONTrafficSource(ts.State, ts.URL, state, ts.Enabled))
		}
	}
	return out
}

// BuildHazardSources wires config.Config's flat hazard feed list plus the
// per-state BOM RSS table and the national DEA hotspot feed into concrete
// HazardSource implementations.
func BuildHazardSources(cfg config.Config) []HazardSource {
	var out []HazardSource
	for _, hs := range cfg.HazardSources {
		state := StateCode(hs.State)
		switch hs.Format {
		case "cap_xml":
			out = append(out, NewCapXMLHazardSource(hs.Name, hs.URL, state, hs.URL != ""))
		case "geojson":
			out = append(out, NewGeoJSONHazardSource(hs.Name, hs.URL, state, hs.URL != ""))
		case "arcgis":
			out = append(out, NewArcGISHazardSource(hs.Name, hs.URL, state, hs.URL != "", defaultArcGISHazardFields))
		case "vendor_json":
			out = append(out, NewVendorJSONHazardSource(hs.Name, hs.URL, state, hs.URL != ""))
		}
	}
	for state, url := range cfg.BomRSSURLs {
		out = append(out, NewRSSHazardSource("bom_warnings_"+state, url, StateCode(state), url != ""))
	}
	if cfg.DEAHotspotsURL != "" {
		out = append(out, NewDEAHotspotSource(cfg.DEAHotspotsURL, true))
	}
	return out
}

var defaultArcGISTrafficFields = arcgisFieldMap{
	ID:          "OBJECTID",
	Headline:    "EVENT_TYPE",
	Description: "DESCRIPTION",
	EventType:   "EVENT_TYPE",
	Severity:    "SEVERITY",
	StartAt:     "START_DATE",
	EndAt:       "END_DATE",
}

var defaultArcGISHazardFields = arcgisFieldMap{
	ID:          "OBJECTID",
	Headline:    "INCIDENT_NAME",
	Description: "INCIDENT_TYPE",
	EventType:   "INCIDENT_TYPE",
	Severity:    "STATUS",
	StartAt:     "START_DATE",
	EndAt:       "END_DATE",
}
