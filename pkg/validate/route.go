package validate

import (
	"context"
	"fmt"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

// PolicyLookup resolves a (id, version) policy reference during route
// validation. storage.Store satisfies this.
type PolicyLookup interface {
	GetPolicyVersion(ctx context.Context, id, version string) (*model.PolicySpec, error)
}

// RoutePolicies validates route.Policies per spec.md §4.2 / invariant 2:
// for each binding (context "route.policies[i]"):
//   - params, if present, must be a JSON object
//   - the referenced (id, version) must exist (missing is a validation
//     failure, not a storage failure)
//   - stage must be in the policy's supported_stages
//   - effective = deep_merge(policy.default_config, params) must validate
//     against the policy's config_schema
//
// Every problem across every binding is accumulated.
func RoutePolicies(ctx context.Context, lookup PolicyLookup, route *model.RouteSpec) error {
	ve := &gwerrors.ValidationError{}

	for i, binding := range route.Policies {
		bctx := fmt.Sprintf("route.policies[%d]", i)

		params, err := parseParams(binding.Params)
		if err != nil {
			ve.Add(bctx+".params", err.Error())
			continue
		}

		policy, err := lookup.GetPolicyVersion(ctx, binding.ID, binding.Version)
		if err != nil {
			ve.Add(bctx, fmt.Sprintf("failed to resolve policy %s@%s: %v", binding.ID, binding.Version, err))
			continue
		}
		if policy == nil {
			ve.Add(bctx, fmt.Sprintf("policy %s@%s not found", binding.ID, binding.Version))
			continue
		}

		if !policy.SupportsStage(binding.Stage) {
			ve.Add(bctx, fmt.Sprintf("stage %s not allowed for %s@%s", binding.Stage, binding.ID, binding.Version))
		}
		if !model.ValidStages[binding.Stage] {
			ve.Add(bctx, fmt.Sprintf("unknown stage %q", binding.Stage))
		}

		compiled, err := compileSchema(policy.ConfigSchema)
		if err != nil {
			ve.Add(bctx, err.Error())
			continue
		}

		effective, err := DeepMerge(bctx, policy.ResolvedDefaultConfig(), params)
		if err != nil {
			ve.Add("", err.Error())
			continue
		}

		msgs, err := validateAgainst(compiled, effective)
		if err != nil {
			ve.Add(bctx, err.Error())
			continue
		}
		for _, m := range msgs {
			ve.Add(bctx+".effective_config", m)
		}
	}

	return ve.AsError()
}

// EffectiveConfig computes deep_merge(policy.default_config, binding.params)
// for a single binding; used by the Snapshot Builder (C4) once validation
// has already passed.
func EffectiveConfig(ctx string, policy *model.PolicySpec, binding model.RoutePolicy) (map[string]any, error) {
	params, err := parseParams(binding.Params)
	if err != nil {
		return nil, err
	}
	return DeepMerge(ctx, policy.ResolvedDefaultConfig(), params)
}
