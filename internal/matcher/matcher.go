// Package matcher implements deterministic route selection (C9) against a
// RuntimeSnapshot, grounded on the tie-break comparator idiom of
// gateway-controller/pkg/xds/route_sorter.go (there applied to envoy
// routes at snapshot-build time; here applied at request time across the
// in-memory Route slice).
package matcher

import (
	"strings"

	"github.com/wso2/gateway-core/pkg/model"
)

// Match selects the best candidate Route for (path, method, host) out of
// snap.Routes, or nil if none match. It is a total, deterministic function:
// no randomness, no external state beyond snap.
func Match(snap *model.RuntimeSnapshot, path, method, host string) *model.Route {
	if snap == nil {
		return nil
	}

	normHost := normalizeHost(host)

	var best *model.Route
	for _, route := range snap.Routes {
		if !candidate(route, path, method, normHost) {
			continue
		}
		if best == nil || better(route, best) {
			best = route
		}
	}
	return best
}

func candidate(r *model.Route, path, method, normHost string) bool {
	if r.PathPrefix != "" && !strings.HasPrefix(path, r.PathPrefix) {
		return false
	}
	if len(r.Methods) > 0 && !methodMatches(r.Methods, method) {
		return false
	}
	if r.Host != "" {
		if normHost == "" || !strings.EqualFold(normalizeHost(r.Host), normHost) {
			return false
		}
	}
	return true
}

func methodMatches(methods []string, method string) bool {
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// better reports whether a outranks b per spec.md §4.7's lexicographic
// order: longer path_prefix, then host-specific over host-agnostic, then
// method-specific over method-agnostic, then smaller route.id.
func better(a, b *model.Route) bool {
	if la, lb := len(a.PathPrefix), len(b.PathPrefix); la != lb {
		return la > lb
	}
	if ha, hb := a.Host != "", b.Host != ""; ha != hb {
		return ha
	}
	if ma, mb := len(a.Methods) > 0, len(b.Methods) > 0; ma != mb {
		return ma
	}
	return a.ID < b.ID
}

// normalizeHost lowercases host and strips a ":port" suffix, keeping
// bracketed IPv6 literals (e.g. "[::1]:8080" -> "[::1]") intact.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			return host[:idx+1]
		}
		return host
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}
