// Package config loads the bundle engine's configuration from the
// environment, following the flat getenv-helper shape used throughout this
// codebase rather than a declarative binding library.
package config

import (
	"os"
	"strconv"
	"strings"
)

// TrafficSource describes one per-state traffic feed endpoint.
type TrafficSource struct {
	State    string
	Enabled  bool
	APIKey   string
	URL      string
	DeltaURL string
	Format   string // qld_v2 | geojson | arcgis | vendor_json
}

// HazardSource describes one per-state emergency/weather feed endpoint.
type HazardSource struct {
	State  string
	Name   string
	URL    string
	Format string // cap_xml | rss | geojson | vendor_json | arcgis
}

type Config struct {
	DataDir     string
	CacheDBPath string

	EdgesDatabaseURL string
	EdgesDBPath      string

	AlgoVersion         string
	CorridorAlgoVersion string
	PlacesAlgoVersion   string
	TrafficAlgoVersion  string
	HazardsAlgoVersion  string

	CorridorBufferMDefault  int
	CorridorMaxEdgesDefault int

	OverpassURL        string
	OverpassTimeoutS   float64
	OverpassThrottleS  float64
	OverpassRetries    int
	OverpassRetryBaseS float64

	PlacesTileStepDeg         float64
	PlacesMaxTiles            int
	PlacesHardCap             int
	PlacesLocalSatisfyRatio   float64
	PlacesTileTTLS            int64
	PlacesTimeBudgetS         float64
	PlacesMaxOverpassPerReq   int
	PlacesSampleIntervalKmDef float64
	PlacesBufferKmDef         float64

	OverlaysCacheSeconds int
	OverlaysTimeoutS     float64

	TrafficSources map[string]TrafficSource
	HazardSources  []HazardSource
	BomRSSURLs     map[string]string

	DEAHotspotsURL      string
	DEAHotspotsMinConf  int
	DEAHotspotsMaxHours int

	SupaURL            string
	SupaServiceRoleKey string
	SupaEnabled        bool

	RedisAddr string

	KafkaBrokers           []string
	KafkaInvalidationTopic string
	KafkaGroupID           string

	RoutingURL      string
	RoutingProfile  string
	RoutingTimeoutS float64

	ElevationURL       string
	ElevationTimeoutS  float64
	ElevationBatchSize int
	ElevationIntervalM float64
	GradeSegmentKm     float64

	LLMTimeoutS float64
	LogLevel    string
	Addr        string
	MetricsAddr string
}

func FromEnv() Config {
	return Config{
		DataDir:     getenv("DATA_DIR", "./data"),
		CacheDBPath: getenv("CACHE_DB_PATH", "./data/cache.db"),

		EdgesDatabaseURL: getenv("EDGES_DATABASE_URL", ""),
		EdgesDBPath:      getenv("EDGES_DB_PATH", "./data/edges_queensland.db"),

		AlgoVersion:         getenv("ALGO_VERSION", "bundle.v1"),
		CorridorAlgoVersion: getenv("CORRIDOR_ALGO_VERSION", "corridor.v1"),
		PlacesAlgoVersion:   getenv("PLACES_ALGO_VERSION", "places.v1.overpass.tiled"),
		TrafficAlgoVersion:  getenv("TRAFFIC_ALGO_VERSION", "traffic.v1"),
		HazardsAlgoVersion:  getenv("HAZARDS_ALGO_VERSION", "hazards.v1"),

		CorridorBufferMDefault:  getint("CORRIDOR_BUFFER_M_DEFAULT", 15000),
		CorridorMaxEdgesDefault: getint("CORRIDOR_MAX_EDGES_DEFAULT", 350000),

		OverpassURL:        getenv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeoutS:   getfloat("OVERPASS_TIMEOUT_S", 90.0),
		OverpassThrottleS:  getfloat("OVERPASS_THROTTLE_S", 0.0),
		OverpassRetries:    getint("OVERPASS_RETRIES", 4),
		OverpassRetryBaseS: getfloat("OVERPASS_RETRY_BASE_S", 0.75),

		PlacesTileStepDeg:         getfloat("PLACES_TILE_STEP_DEG", 0.15),
		PlacesMaxTiles:            getint("PLACES_MAX_TILES", 64),
		PlacesHardCap:             getint("PLACES_HARD_CAP", 12000),
		PlacesLocalSatisfyRatio:   getfloat("PLACES_LOCAL_SATISFY_RATIO", 0.70),
		PlacesTileTTLS:            int64(getint("PLACES_TILE_TTL_S", 14*24*3600)),
		PlacesTimeBudgetS:         getfloat("PLACES_TIME_BUDGET_S", 10.0),
		PlacesMaxOverpassPerReq:   getint("PLACES_MAX_OVERPASS_TILES_PER_REQ", 12),
		PlacesSampleIntervalKmDef: getfloat("PLACES_SAMPLE_INTERVAL_KM", 8.0),
		PlacesBufferKmDef:         getfloat("PLACES_BUFFER_KM", 2.0),

		OverlaysCacheSeconds: getint("OVERLAYS_CACHE_SECONDS", 120),
		OverlaysTimeoutS:     getfloat("OVERLAYS_TIMEOUT_S", 15.0),

		TrafficSources: trafficSourcesFromEnv(),
		HazardSources:  hazardSourcesFromEnv(),
		BomRSSURLs:     bomRSSFromEnv(),

		DEAHotspotsURL:      getenv("DEA_HOTSPOTS_URL", "https://hotspots.dea.ga.gov.au/data/recent-hotspots.json"),
		DEAHotspotsMinConf:  getint("DEA_HOTSPOTS_MIN_CONFIDENCE", 50),
		DEAHotspotsMaxHours: getint("DEA_HOTSPOTS_MAX_HOURS", 72),

		SupaURL:            getenv("SUPA_URL", ""),
		SupaServiceRoleKey: getenv("SUPA_SERVICE_ROLE_KEY", ""),
		SupaEnabled:        getbool("SUPA_ENABLED", false),

		RedisAddr: getenv("REDIS_ADDR", ""),

		KafkaBrokers:           splitCSV(getenv("KAFKA_BROKERS", "")),
		KafkaInvalidationTopic: getenv("KAFKA_INVALIDATION_TOPIC", "bundle-invalidation"),
		KafkaGroupID:           getenv("KAFKA_GROUP_ID", "bundle-engine"),

		RoutingURL:      getenv("ROUTING_URL", "http://localhost:5000"),
		RoutingProfile:  getenv("ROUTING_PROFILE", "driving"),
		RoutingTimeoutS: getfloat("ROUTING_TIMEOUT_S", 30.0),

		ElevationURL:       getenv("ELEVATION_URL", "https://api.open-elevation.com/api/v1/lookup"),
		ElevationTimeoutS:  getfloat("ELEVATION_TIMEOUT_S", 30.0),
		ElevationBatchSize: getint("ELEVATION_BATCH_SIZE", 200),
		ElevationIntervalM: getfloat("ELEVATION_SAMPLE_INTERVAL_M", 500.0),
		GradeSegmentKm:     getfloat("ELEVATION_GRADE_SEGMENT_KM", 5.0),

		LLMTimeoutS: getfloat("LLM_TIMEOUT_S", 25.0),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Addr:        getenv("ADDR", ":8090"),
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),
	}
}

// QLD carries its own v2 events+delta API; the others are single-endpoint
// feeds. SA is disabled by default; its upstream feed has been dead since
// before this engine's original implementation.
func trafficSourcesFromEnv() map[string]TrafficSource {
	return map[string]TrafficSource{
		"qld": {
			State:    "qld",
			Enabled:  true,
			URL:      getenv("QLD_TRAFFIC_V2_EVENTS_URL", "https://www.qldtraffic.qld.gov.au/api/v2/events"),
			DeltaURL: getenv("QLD_TRAFFIC_V2_DELTA_URL", "https://www.qldtraffic.qld.gov.au/api/v2/delta"),
			APIKey:   getenv("QLD_TRAFFIC_API_KEY", ""),
			Format:   "qld_v2",
		},
		"nsw": {
			State:   "nsw",
			Enabled: getbool("NSW_TRAFFIC_ENABLED", true),
			APIKey:  getenv("NSW_TRAFFIC_API_KEY", ""),
			URL:     getenv("NSW_TRAFFIC_URL", "https://api.transport.nsw.gov.au/v1/live/hazards/all"),
			Format:  "geojson",
		},
		"vic": {
			State:   "vic",
			Enabled: getbool("VIC_TRAFFIC_ENABLED", true),
			APIKey:  getenv("VIC_TRAFFIC_API_KEY", ""),
			URL:     getenv("VIC_TRAFFIC_URL", "https://traffic.vicroads.vic.gov.au/opendata/events.json"),
			Format:  "vendor_json",
		},
		"sa": {
			State:   "sa",
			Enabled: getbool("SA_TRAFFIC_ENABLED", false),
			APIKey:  getenv("SA_TRAFFIC_API_KEY", ""),
			URL:     getenv("SA_TRAFFIC_URL", ""),
			Format:  "geojson",
		},
		"wa": {
			State:   "wa",
			Enabled: getbool("WA_TRAFFIC_ENABLED", true),
			APIKey:  getenv("WA_TRAFFIC_API_KEY", ""),
			URL:     getenv("WA_TRAFFIC_URL", "https://www.mainroads.wa.gov.au/roadinfo/incidents.geojson"),
			Format:  "arcgis",
		},
		"nt": {
			State:   "nt",
			Enabled: getbool("NT_TRAFFIC_ENABLED", true),
			APIKey:  getenv("NT_TRAFFIC_API_KEY", ""),
			URL:     getenv("NT_TRAFFIC_URL", "https://www.ntg.gov.au/data/roadreport.json"),
			Format:  "vendor_json",
		},
	}
}

func hazardSourcesFromEnv() []HazardSource {
	return []HazardSource{
		{State: "qld", Name: "qld_disaster_cap", URL: getenv("QLD_DISASTER_CAP_URL", "https://www.disaster.qld.gov.au/warnings/rss/cap.xml"), Format: "cap_xml"},
		{State: "qld", Name: "qld_emergency_alerts", URL: getenv("QLD_EMERGENCY_ALERTS_URL", "https://www.qfes.qld.gov.au/data/alerts.json"), Format: "vendor_json"},
		{State: "nsw", Name: "nsw_rfs_fires", URL: getenv("NSW_RFS_FIRES_URL", "https://www.rfs.nsw.gov.au/feeds/majorIncidents.xml"), Format: "cap_xml"},
		{State: "vic", Name: "vic_emergency", URL: getenv("VIC_EMERGENCY_URL", "https://emergency.vic.gov.au/public/osom-geojson.json"), Format: "geojson"},
		{State: "sa", Name: "sa_cfs", URL: getenv("SA_CFS_URL", "https://www.cfs.sa.gov.au/data/cap.xml"), Format: "cap_xml"},
		{State: "wa", Name: "wa_dfes", URL: getenv("WA_DFES_URL", "https://www.emergency.wa.gov.au/data/cap.xml"), Format: "cap_xml"},
		{State: "tas", Name: "tas_thelist", URL: getenv("TAS_THELIST_URL", ""), Format: "arcgis"},
	}
}

func bomRSSFromEnv() map[string]string {
	states := []string{"qld", "nsw", "vic", "sa", "wa", "nt", "tas"}
	out := make(map[string]string, len(states))
	for _, s := range states {
		key := "BOM_RSS_" + strings.ToUpper(s) + "_URL"
		out[s] = getenv(key, "http://www.bom.gov.au/fwo/IDZ00059."+s+".xml")
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
