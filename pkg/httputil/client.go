// Package httputil provides the shared HTTP plumbing for external scoring
// services: pooled clients with per-tier timeouts and a concurrency
// semaphore for bounding in-flight calls.
package httputil

import (
	"net"
	"net/http"
	"time"
)

// Shared transport with connection pooling. Safe for concurrent use;
// reusing TCP connections matters when every message may trigger a
// scoring call.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// Clients bundles the two client tiers the pipeline needs: quick
// liveness/health probes and model scoring calls. Both share the pooled
// transport.
type Clients struct {
	// Health is for cheap probes of external services (5s).
	Health *http.Client
	// Scoring is for embedding and classification calls; its timeout is
	// the ceiling, the per-call scoring timeout is enforced via context.
	Scoring *http.Client
}

// NewClients builds the client bundle. scoringTimeout <= 0 falls back to
// 60s, generous enough for cold model services.
func NewClients(scoringTimeout time.Duration) *Clients {
	if scoringTimeout <= 0 {
		scoringTimeout = 60 * time.Second
	}
	return &Clients{
		Health: &http.Client{
			Timeout:   5 * time.Second,
			Transport: sharedTransport,
		},
		Scoring: &http.Client{
			Timeout:   scoringTimeout,
			Transport: sharedTransport,
		},
	}
}
