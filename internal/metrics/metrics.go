// Package metrics exposes Prometheus metrics for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Enabled bool
	Addr    string
	Path    string
	Build   BuildInfo
}

type Provider struct {
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	return &Provider{reg: reg, buildInfo: build}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// RemotePoolMetrics instruments the Redis-backed remote POI pool tier
// (internal/cache/redisstore): op latency/outcome and hit/miss counts.
type RemotePoolMetrics struct {
	opDuration *prometheus.HistogramVec
	opsTotal   *prometheus.CounterVec
	hits       prometheus.Counter
	misses     prometheus.Counter
}

// NewRemotePoolMetrics builds and registers the remote-pool collectors
// against p. Call once per process.
func (p *Provider) NewRemotePoolMetrics() *RemotePoolMetrics {
	m := &RemotePoolMetrics{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remote_pool_op_duration_seconds",
			Help:    "Latency of remote POI pool operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remote_pool_ops_total",
			Help: "Remote POI pool operations by outcome.",
		}, []string{"op", "status"}),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remote_pool_hits_total",
			Help: "Keys found in the remote POI pool.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remote_pool_misses_total",
			Help: "Keys missing from the remote POI pool.",
		}),
	}
	p.Register(m.opDuration, m.opsTotal, m.hits, m.misses)
	return m
}

func (m *RemotePoolMetrics) ObserveOp(op string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(op).Observe(seconds)
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.opsTotal.WithLabelValues(op, status).Inc()
}

func (m *RemotePoolMetrics) AddHits(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.hits.Add(float64(n))
}

func (m *RemotePoolMetrics) AddMisses(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.misses.Add(float64(n))
}
