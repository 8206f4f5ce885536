package proxyglue

import (
	"fmt"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

// selectUpstream picks the next upstream for route by round-robin,
// mirroring original_source/gateway-dp/src/router/select.rs's
// select_upstream: an empty upstream list is a hard failure, otherwise the
// route's own atomic counter picks the next index modulo the pool size.
func selectUpstream(route *model.Route) (model.Upstream, error) {
	if len(route.Upstreams) == 0 {
		return model.Upstream{}, fmt.Errorf("%w: route %s has no upstreams", gwerrors.ErrNoUpstream, route.ID)
	}
	idx := route.NextUpstreamIndex(len(route.Upstreams))
	return route.Upstreams[idx], nil
}

// selectUpstreamByHint resolves an upstream_hint to the upstream whose url
// matches exactly; a hint that names no configured upstream is a hard
// failure (spec.md §4.8 step 6).
func selectUpstreamByHint(route *model.Route, hint string) (model.Upstream, error) {
	for _, u := range route.Upstreams {
		if u.URL == hint {
			return u, nil
		}
	}
	return model.Upstream{}, fmt.Errorf("%w: upstream_hint %q does not match any upstream on route %s", gwerrors.ErrNoUpstream, hint, route.ID)
}
