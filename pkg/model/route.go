package model

import (
	"encoding/json"
	"sync/atomic"
)

// MatchRules describes how a RouteSpec selects requests.
type MatchRules struct {
	PathPrefix string   `json:"path_prefix,omitempty"`
	Host       string   `json:"host,omitempty"`
	Method     []string `json:"method,omitempty"`
}

// Upstream is a single candidate backend for a route.
type Upstream struct {
	URL      string `json:"url"`
	Weight   int    `json:"weight,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// RoutePolicy binds a route to a policy at a given stage with optional
// route-level parameter overrides. Params is kept as raw JSON (rather than
// map[string]any) so a non-object value can be reported as a validation
// error ("params must be a JSON object") instead of failing request body
// binding outright.
type RoutePolicy struct {
	Stage   Stage           `json:"stage"`
	ID      string          `json:"id"`
	Version string          `json:"version"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RouteSpec is the admin-facing, persisted shape of a route.
type RouteSpec struct {
	ID         string        `json:"id" db:"id"`
	MatchRules MatchRules    `json:"match" db:"match_rules"`
	Upstreams  []Upstream    `json:"upstreams" db:"upstreams"`
	LB         string        `json:"lb,omitempty" db:"lb"`
	Failover   string        `json:"failover,omitempty" db:"failover"`
	Policies   []RoutePolicy `json:"policies" db:"policies"`
}

// PolicyBinding is a wire-level, pre-merged policy binding inside a Route.
type PolicyBinding struct {
	Stage             Stage
	ID                string
	Version           string
	EffectiveConfigJSON string
}

// Route is the wire-level (snapshot) representation of a route: match rules
// translated to flat fields, and bindings carrying pre-merged effective
// config JSON instead of raw params.
type Route struct {
	ID         string
	PathPrefix string
	Methods    []string
	Host       string
	Upstreams  []Upstream
	LB         string
	Failover   string
	Bindings   []PolicyBinding

	// rrIndex is the per-route round-robin counter (§5). It lives on the
	// route value itself so every request against the same route in a
	// RuntimeSnapshot shares one counter.
	rrIndex atomic.Uint64
}

// NextUpstreamIndex atomically advances and returns the next round-robin
// index modulo n. Callers must guarantee n > 0.
func (r *Route) NextUpstreamIndex(n int) int {
	v := r.rrIndex.Add(1) - 1
	return int(v % uint64(n))
}
