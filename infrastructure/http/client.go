// Package http provides the tuned HTTP client used for outbound calls from the view agent.
package http

import (
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests.
	DefaultTimeout = 10 * time.Second

	DefaultMaxIdleConns        = 20
	DefaultMaxIdleConnsPerHost = 4
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
)

// ClientConfig configures an HTTP client. Zero values fall back to the defaults above.
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
}

// NewClient creates a new HTTP client with standardized configuration.
// If cfg is nil, default values are used.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := orDuration(cfg.Timeout, DefaultTimeout)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = orInt(cfg.MaxIdleConns, DefaultMaxIdleConns)
	transport.MaxIdleConnsPerHost = orInt(cfg.MaxIdleConnsPerHost, DefaultMaxIdleConnsPerHost)
	transport.IdleConnTimeout = orDuration(cfg.IdleConnTimeout, DefaultIdleConnTimeout)
	transport.TLSHandshakeTimeout = orDuration(cfg.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout)
	transport.ResponseHeaderTimeout = timeout

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout is shorthand for NewClient with only Timeout set.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	return NewClient(&ClientConfig{Timeout: timeout})
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
