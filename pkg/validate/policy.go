package validate

import (
	"fmt"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

// PolicySpec validates a PolicySpec per spec.md §4.2 / invariant 1:
//   - sha256 non-empty
//   - default_config is a JSON object
//   - supported_stages non-empty, each drawn from the enumerated set
//   - config_schema compiles
//   - default_config validates against the compiled schema
//
// Every problem found is accumulated; validation never short-circuits on
// the first failure.
func PolicySpec(p *model.PolicySpec) error {
	ve := &gwerrors.ValidationError{}

	if p.SHA256 == "" {
		ve.Add("", "sha256 must not be empty")
	}

	defCfg := p.ResolvedDefaultConfig()
	if defCfg == nil {
		ve.Add("", "default_config must be a JSON object")
	}

	if len(p.SupportedStages) == 0 {
		ve.Add("", "supported_stages must not be empty")
	}
	for _, s := range p.SupportedStages {
		if !model.ValidStages[s] {
			ve.Add("", fmt.Sprintf("supported_stages contains unknown stage %q", s))
		}
	}

	if p.ConfigSchema == nil {
		ve.Add("", "config_schema must be a JSON object")
	} else {
		compiled, err := compileSchema(p.ConfigSchema)
		if err != nil {
			ve.Add("", err.Error())
		} else if defCfg != nil {
			msgs, err := validateAgainst(compiled, defCfg)
			if err != nil {
				ve.Add("", err.Error())
			}
			for _, m := range msgs {
				ve.Add("default_config", m)
			}
		}
	}

	return ve.AsError()
}
