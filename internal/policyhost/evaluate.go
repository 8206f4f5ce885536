package policyhost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/metrics"
	"github.com/wso2/gateway-core/pkg/model"
)

// evaluationInput is the JSON payload handed to the guest's
// evaluate_pre_upstream export, matching the ABI documented in spec.md §6:
// (method, path, host?, headers_json, effective_config_json).
type evaluationInput struct {
	Method            string              `json:"method"`
	Path              string              `json:"path"`
	Host              string              `json:"host,omitempty"`
	Headers           []model.HeaderPair  `json:"headers"`
	EffectiveConfig   json.RawMessage     `json:"effective_config_json"`
}

// guestResult is the tagged union the guest writes back: either "ok"
// carries a PolicyDecision, or "err" carries the guest's rejection string.
type guestResult struct {
	Ok  *model.PolicyDecision `json:"ok,omitempty"`
	Err *string                `json:"err,omitempty"`
}

// EvaluatePreUpstream instantiates a fresh sandbox for binding's compiled
// module and invokes evaluate_pre_upstream. Every invocation gets its own
// module instance (no shared mutable guest state across requests) and no
// host imports beyond the guest's own memory — no ambient filesystem or
// network capability is exposed.
func (h *Host) EvaluatePreUpstream(ctx context.Context, binding model.PolicyBinding, view model.RequestView) (*model.PolicyDecision, error) {
	key := model.PolicyKey{ID: binding.ID, Version: binding.Version}
	start := time.Now()

	if binding.Stage != model.StagePreUpstream {
		metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "error").Inc()
		return nil, fmt.Errorf("%w: binding %s is stage %s", gwerrors.ErrUnsupportedStage, key, binding.Stage)
	}

	h.mu.RLock()
	compiled, ok := h.cache[key]
	h.mu.RUnlock()
	if !ok {
		metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "error").Inc()
		return nil, fmt.Errorf("%w: %s", gwerrors.ErrUnknownPolicy, key)
	}
	defer func() {
		metrics.PolicyEvaluationDurationSeconds.WithLabelValues(binding.ID).Observe(time.Since(start).Seconds())
	}()

	input := evaluationInput{
		Method:          view.Method,
		Path:            view.Path,
		Host:            view.Host,
		Headers:         view.Headers,
		EffectiveConfig: json.RawMessage(binding.EffectiveConfigJSON),
	}
	inBytes, err := json.Marshal(input)
	if err != nil {
		metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "error").Inc()
		return nil, fmt.Errorf("%w: marshal evaluation input: %v", gwerrors.ErrGuestExecution, err)
	}

	instanceCfg := wazero.NewModuleConfig()
	instance, err := h.runtime.InstantiateModule(ctx, compiled.module, instanceCfg)
	if err != nil {
		metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "error").Inc()
		return nil, fmt.Errorf("%w: instantiate guest %s: %v", gwerrors.ErrGuestExecution, key, err)
	}
	defer instance.Close(ctx)

	outBytes, err := invokeEvaluate(ctx, instance, inBytes)
	if err != nil {
		metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "error").Inc()
		return nil, fmt.Errorf("%w: %s: %v", gwerrors.ErrGuestExecution, key, err)
	}

	var result guestResult
	if err := json.Unmarshal(outBytes, &result); err != nil {
		metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "error").Inc()
		return nil, fmt.Errorf("%w: %s: malformed guest result: %v", gwerrors.ErrGuestExecution, key, err)
	}
	if result.Err != nil {
		metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "rejected").Inc()
		return nil, fmt.Errorf("%w: %s: %s", gwerrors.ErrGuestRejected, key, *result.Err)
	}
	if result.Ok == nil {
		metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "error").Inc()
		return nil, fmt.Errorf("%w: %s: guest returned neither ok nor err", gwerrors.ErrGuestExecution, key)
	}
	metrics.PolicyEvaluationsTotal.WithLabelValues(binding.ID, "ok").Inc()
	return result.Ok, nil
}

// invokeEvaluate implements the ptr/len ABI: the guest exports "alloc" to
// reserve an input buffer in its own linear memory and "evaluate_pre_upstream"
// to run, returning the output buffer packed as (ptr<<32 | len) in a single
// i64 so the host needs no extra export to learn the result length.
func invokeEvaluate(ctx context.Context, instance api.Module, input []byte) ([]byte, error) {
	alloc := instance.ExportedFunction("alloc")
	evaluate := instance.ExportedFunction("evaluate_pre_upstream")
	if alloc == nil || evaluate == nil {
		return nil, fmt.Errorf("guest module missing required exports alloc/evaluate_pre_upstream")
	}

	allocRes, err := alloc.Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("call alloc: %w", err)
	}
	inPtr := uint32(allocRes[0])

	mem := instance.Memory()
	if !mem.Write(inPtr, input) {
		return nil, fmt.Errorf("write input to guest memory out of range")
	}

	evalRes, err := evaluate.Call(ctx, uint64(inPtr), uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("call evaluate_pre_upstream: %w", err)
	}

	packed := evalRes[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed)

	out, ok := mem.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("read output from guest memory out of range")
	}
	// Read returns a view into guest memory; copy before the instance closes.
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}
