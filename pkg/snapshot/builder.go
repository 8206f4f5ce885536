// Package snapshot builds immutable, versioned Snapshots from store state
// (C4) and publishes them to data-plane subscribers over an xDS-style push
// channel (C5), grounded on gateway-controller/pkg/policyxds.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
	"github.com/wso2/gateway-core/pkg/validate"
)

// StoreReader is the subset of storage.Store the Builder needs.
type StoreReader interface {
	Snapshot(ctx context.Context) (routes []*model.RouteSpec, policies map[model.PolicyKey]*model.PolicySpec, err error)
}

// Builder assembles Snapshots from store state. It is the sole writer of
// the version counter and must be constructed once per process (spec.md §9:
// "CP version counter ... process-wide with lifecycle bound to process
// lifetime").
type Builder struct {
	store   StoreReader
	version atomic.Uint64
}

// NewBuilder creates a Builder starting at version 0 (the first published
// snapshot will be version 1).
func NewBuilder(store StoreReader) *Builder {
	return &Builder{store: store}
}

// Build reads the current store state and assembles a new, self-contained
// Snapshot, per spec.md §4.3:
//  1. read all routes (ordered by id)
//  2. resolve every (policy_id, policy_version) referenced by any route's
//     policies exactly once; a missing reference is a fatal build error
//  3. translate match_rules/upstreams and pre-merge each binding's
//     effective_config_json
//  4. allocate version = previous_version + 1 atomically
//  5. include one deduplicated PolicyArtifact per referenced (id, version)
func (b *Builder) Build(ctx context.Context) (*model.Snapshot, error) {
	routeSpecs, policies, err := b.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(routeSpecs, func(i, j int) bool { return routeSpecs[i].ID < routeSpecs[j].ID })

	routes := make([]model.Route, 0, len(routeSpecs))
	referenced := map[model.PolicyKey]bool{}

	for _, spec := range routeSpecs {
		route := model.Route{
			ID:         spec.ID,
			PathPrefix: spec.MatchRules.PathPrefix,
			Host:       spec.MatchRules.Host,
			Methods:    append([]string(nil), spec.MatchRules.Method...),
			Upstreams:  append([]model.Upstream(nil), spec.Upstreams...),
			LB:         spec.LB,
			Failover:   spec.Failover,
		}
		if route.Methods == nil {
			route.Methods = []string{}
		}
		if route.Upstreams == nil {
			route.Upstreams = []model.Upstream{}
		}

		for _, binding := range spec.Policies {
			key := model.PolicyKey{ID: binding.ID, Version: binding.Version}
			policy, ok := policies[key]
			if !ok {
				return nil, fmt.Errorf("%w: missing policy %s referenced by route %s", gwerrors.ErrSnapshotBuild, key, spec.ID)
			}
			referenced[key] = true

			effective, err := validate.EffectiveConfig(fmt.Sprintf("route %s binding %s", spec.ID, key), policy, binding)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", gwerrors.ErrSnapshotBuild, err.Error())
			}
			effectiveJSON, err := json.Marshal(effective)
			if err != nil {
				return nil, fmt.Errorf("%w: marshal effective config for route %s: %s", gwerrors.ErrSnapshotBuild, spec.ID, err.Error())
			}

			route.Bindings = append(route.Bindings, model.PolicyBinding{
				Stage:               binding.Stage,
				ID:                  binding.ID,
				Version:             binding.Version,
				EffectiveConfigJSON: string(effectiveJSON),
			})
		}

		routes = append(routes, route)
	}

	artifacts := make([]model.PolicyArtifact, 0, len(referenced))
	for key := range referenced {
		policy := policies[key]
		artifacts = append(artifacts, model.PolicyArtifact{
			ID: policy.ID, Version: policy.Version, WasmURI: policy.WasmURI, SHA256: policy.SHA256,
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].ID != artifacts[j].ID {
			return artifacts[i].ID < artifacts[j].ID
		}
		return artifacts[i].Version < artifacts[j].Version
	})

	version := b.version.Add(1)

	return &model.Snapshot{
		Version:         version,
		Routes:          routes,
		PolicyArtifacts: artifacts,
	}, nil
}
