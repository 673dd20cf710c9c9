// Package environment describes the runtime the aggregator is recording views for.
package environment

import (
	"strings"
	"sync/atomic"
)

// DefaultUserAgent is reported when no browser user agent has been configured or observed.
const DefaultUserAgent = "mondai-view-agent"

// Info exposes descriptive properties of the viewing runtime.
type Info interface {
	UserAgent() string
}

// Static reports a fixed user agent.
type Static struct {
	Agent string
}

// UserAgent returns the configured agent, or DefaultUserAgent when blank.
func (s Static) UserAgent() string {
	if strings.TrimSpace(s.Agent) == "" {
		return DefaultUserAgent
	}
	return s.Agent
}

// Observed remembers the most recent user agent seen on an incoming request.
// The zero value is not usable; call NewObserved.
type Observed struct {
	fallback string
	current  atomic.Pointer[string]
}

// NewObserved returns an Observed that reports fallback until Observe is called.
func NewObserved(fallback string) *Observed {
	return &Observed{fallback: Static{Agent: fallback}.UserAgent()}
}

// Observe records ua as the current user agent. Blank values are ignored.
func (o *Observed) Observe(ua string) {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return
	}
	o.current.Store(&ua)
}

// UserAgent returns the last observed agent or the fallback.
func (o *Observed) UserAgent() string {
	if ua := o.current.Load(); ua != nil {
		return *ua
	}
	return o.fallback
}
