package dpsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

// PolicyLoader preloads every policy artifact a new Snapshot references,
// returning the subset that loaded successfully (fetched, hash-verified,
// compiled). A policy that fails to preload is simply absent from the
// registry; internal/proxyglue treats an unloaded policy as a fail-closed
// execution error at request time rather than blocking the snapshot swap
// itself, so one bad artifact never stalls the rest of the fleet.
//
// internal/policyhost.Host implements this.
type PolicyLoader interface {
	Preload(ctx context.Context, artifacts []model.PolicyArtifact) []model.PolicyKey
}

// materialize turns a wire Snapshot into a RuntimeSnapshot: routes become
// pointers (so internal/proxyglue's round-robin counters are shared across
// requests against the same published snapshot) and referenced policies are
// preloaded into a registry. Every binding's EffectiveConfigJSON is parsed
// up front; a single malformed binding rejects the whole snapshot so the
// data plane keeps running on its last-known-good RuntimeSnapshot instead of
// swapping in routes whose policy config can't be decoded at request time.
func materialize(ctx context.Context, snap *model.Snapshot, loader PolicyLoader) (*model.RuntimeSnapshot, error) {
	routes := make([]*model.Route, len(snap.Routes))
	for i := range snap.Routes {
		route := snap.Routes[i]
		for _, binding := range route.Bindings {
			var parsed any
			if err := json.Unmarshal([]byte(binding.EffectiveConfigJSON), &parsed); err != nil {
				return nil, fmt.Errorf("%w: route %s binding %s@%s: invalid effective_config_json: %v",
					gwerrors.ErrSnapshotBuild, route.ID, binding.ID, binding.Version, err)
			}
		}
		routes[i] = &route
	}

	loaded := loader.Preload(ctx, snap.PolicyArtifacts)

	return &model.RuntimeSnapshot{
		Version:  snap.Version,
		Routes:   routes,
		Policies: model.NewPolicyRegistry(loaded),
	}, nil
}
