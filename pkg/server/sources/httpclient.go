package sources

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultConnectTimeout bounds dialing an upstream.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultRequestTimeout bounds a whole upstream request.
	DefaultRequestTimeout = 10 * time.Second
)

var (
	defaultClient     *http.Client
	defaultClientOnce sync.Once
)

// NewHTTPClient builds the HTTP client shared by all adapters. It keeps a
// pooled transport so adapters reuse connections across calls.
func NewHTTPClient(connectTimeout, requestTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: requestTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   requestTimeout,
	}
}

// DefaultHTTPClient returns a lazily created process-wide client with the
// default timeouts.
func DefaultHTTPClient() *http.Client {
	defaultClientOnce.Do(func() {
		defaultClient = NewHTTPClient(DefaultConnectTimeout, DefaultRequestTimeout)
	})
	return defaultClient
}
