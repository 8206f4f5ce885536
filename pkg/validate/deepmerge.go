// Package validate implements schema compilation, deep merge, and the
// PolicySpec/RouteSpec validation rules of spec.md §4.2, accumulating every
// problem found rather than stopping at the first.
package validate

import (
	"fmt"
)

// DeepMerge implements spec.md §4.2's deep_merge(default, params):
//   - default must be a JSON object (map[string]any); otherwise an error
//     naming ctx is returned.
//   - a nil/absent params returns a clone of default.
//   - for each key in params: if both sides hold objects, recurse;
//     otherwise params's value replaces default's (arrays are replaced, not
//     concatenated; scalars are overwritten).
//   - keys present only in default are retained; keys only in params are
//     added.
func DeepMerge(ctx string, def, params map[string]any) (map[string]any, error) {
	if def == nil {
		return nil, fmt.Errorf("%s.default_config must be a JSON object", ctx)
	}
	out := make(map[string]any, len(def)+len(params))
	for k, v := range def {
		out[k] = v
	}
	for k, pv := range params {
		if dv, ok := out[k]; ok {
			dObj, dIsObj := dv.(map[string]any)
			pObj, pIsObj := pv.(map[string]any)
			if dIsObj && pIsObj {
				merged, err := DeepMerge(ctx, dObj, pObj)
				if err != nil {
					return nil, err
				}
				out[k] = merged
				continue
			}
		}
		out[k] = pv
	}
	return out, nil
}
