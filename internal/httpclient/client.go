// Package httpclient configures the HTTP client used to call upstream services.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates a new outbound http client with tuned transport defaults.
func NewOutbound() *http.Client {
	return NewOutboundWithTimeout(30 * time.Second)
}

// NewOutboundWithTimeout builds a dedicated client per external dependency
// (routing engine, elevation service, OSM endpoint, each overlay source)
// rather than sharing one package-level client across call sites.
func NewOutboundWithTimeout(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
