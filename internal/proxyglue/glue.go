// Package proxyglue applies policy decisions to an outgoing request and
// selects its upstream peer (C10), the data plane's per-request hot path.
// Grounded on the per-binding execution loop of
// gateway-runtime/policy-engine/internal/executor/chain.go
// (ExecuteRequestPolicies) and the upstream peer construction of
// internal/kernel/extproc.go, generalized from the envoy ext_proc
// request/response contract to this gateway's own RequestView/Outcome
// shapes.
package proxyglue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wso2/gateway-core/internal/matcher"
	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/metrics"
	"github.com/wso2/gateway-core/pkg/model"
)

// PolicyEvaluator is the subset of internal/policyhost.Host the glue layer
// needs, kept as an interface so tests can substitute a fake.
type PolicyEvaluator interface {
	Loaded(key model.PolicyKey) bool
	EvaluatePreUpstream(ctx context.Context, binding model.PolicyBinding, view model.RequestView) (*model.PolicyDecision, error)
}

// UpstreamPeer is the dial target derived from the selected upstream's url.
type UpstreamPeer struct {
	Host   string
	Port   int
	TLS    bool
	SNI    string
}

// Outcome is everything the proxy framework needs to forward the request:
// the matched route, the chosen upstream and peer, and the (possibly
// rewritten/mutated) outgoing method, path, and headers.
type Outcome struct {
	RequestID string
	Route     *model.Route
	Upstream  model.Upstream
	Peer      UpstreamPeer
	Method    string
	Path      string
	Headers   []model.HeaderPair
}

var tracer = otel.Tracer("gateway-core/proxyglue")

// Apply runs the full pre-upstream pipeline of spec.md §4.8 against the
// current RuntimeSnapshot: match, evaluate every pre_upstream binding
// in order, compose decisions, enforce the pre-upstream action policy,
// select an upstream, and apply the final mutations.
func Apply(ctx context.Context, snap *model.RuntimeSnapshot, host PolicyEvaluator, view model.RequestView) (*Outcome, error) {
	if view.RequestID == "" {
		view.RequestID = uuid.New().String()
	}

	ctx, span := tracer.Start(ctx, "proxyglue.Apply", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("request.id", view.RequestID))

	route := matcher.Match(snap, view.Path, view.Method, view.Host)
	if route == nil {
		metrics.RouteMatchTotal.WithLabelValues("no_route").Inc()
		span.SetStatus(codes.Error, "no route")
		return nil, fmt.Errorf("%w: %s %s", gwerrors.ErrNoRoute, view.Method, view.Path)
	}
	metrics.RouteMatchTotal.WithLabelValues("matched").Inc()
	span.SetAttributes(attribute.String("route.id", route.ID))

	decision := &model.PolicyDecision{}
	for _, binding := range route.Bindings {
		if binding.Stage != model.StagePreUpstream {
			continue
		}

		_, bspan := tracer.Start(ctx, "proxyglue.evaluate_binding", trace.WithSpanKind(trace.SpanKindInternal))
		bspan.SetAttributes(
			attribute.String("policy.id", binding.ID),
			attribute.String("policy.version", binding.Version),
		)

		if !host.Loaded(model.PolicyKey{ID: binding.ID, Version: binding.Version}) {
			bspan.SetStatus(codes.Error, "policy not loaded")
			bspan.End()
			return nil, fmt.Errorf("%w: %s@%s not loaded for route %s", gwerrors.ErrUnknownPolicy, binding.ID, binding.Version, route.ID)
		}

		result, err := host.EvaluatePreUpstream(ctx, binding, view)
		if err != nil {
			bspan.RecordError(err)
			bspan.SetStatus(codes.Error, "policy evaluation failed")
			bspan.End()
			return nil, err
		}
		bspan.End()

		if result.HasUnsupportedPreUpstreamAction() {
			return nil, fmt.Errorf("%w: %s@%s returned a decision field not honored at pre_upstream", gwerrors.ErrUnsupportedDecisionAction, binding.ID, binding.Version)
		}

		decision.Compose(result)
	}

	upstream, err := chooseUpstream(route, decision.UpstreamHint)
	if err != nil {
		return nil, err
	}

	outMethod, outPath, err := applyRewrite(view, decision.RequestRewrite)
	if err != nil {
		return nil, err
	}

	headers := applyHeaderMutations(view.Headers, decision.RequestHeaders)

	peer, err := buildPeer(upstream.URL)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		RequestID: view.RequestID,
		Route:     route,
		Upstream:  upstream,
		Peer:      peer,
		Method:    outMethod,
		Path:      outPath,
		Headers:   headers,
	}, nil
}

func chooseUpstream(route *model.Route, hint string) (model.Upstream, error) {
	if hint != "" {
		return selectUpstreamByHint(route, hint)
	}
	return selectUpstream(route)
}

func applyRewrite(view model.RequestView, rewrite *model.RequestRewrite) (method, path string, err error) {
	method, path = view.Method, view.Path
	if rewrite == nil {
		return method, path, nil
	}
	if rewrite.Method != "" {
		if !isValidMethod(rewrite.Method) {
			return "", "", fmt.Errorf("request_rewrite: invalid method %q", rewrite.Method)
		}
		method = strings.ToUpper(rewrite.Method)
	}
	if rewrite.Path != "" {
		path = rewrite.Path
	}
	return method, path, nil
}

func isValidMethod(m string) bool {
	switch strings.ToUpper(m) {
	case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "CONNECT", "TRACE":
		return true
	default:
		return false
	}
}

// applyHeaderMutations applies mutations in order onto a copy of the
// inbound headers: overwrite=true inserts-or-replaces by name, false
// appends. Matching is case-insensitive, per HTTP header name semantics.
// An overwrite collapses every existing occurrence of the name down to the
// single replacement value, rather than leaving duplicate inbound headers
// with the same name sitting alongside it.
func applyHeaderMutations(in []model.HeaderPair, mutations []model.HeaderMutation) []model.HeaderPair {
	out := append([]model.HeaderPair(nil), in...)
	for _, m := range mutations {
		if m.Overwrite {
			kept := out[:0]
			replaced := false
			for _, h := range out {
				if strings.EqualFold(h.Name, m.Name) {
					if !replaced {
						kept = append(kept, model.HeaderPair{Name: m.Name, Value: m.Value})
						replaced = true
					}
					continue
				}
				kept = append(kept, h)
			}
			out = kept
			if !replaced {
				out = append(out, model.HeaderPair{Name: m.Name, Value: m.Value})
			}
			continue
		}
		out = append(out, model.HeaderPair{Name: m.Name, Value: m.Value})
	}
	return out
}

// buildPeer derives a dial target from an upstream url, accepting a
// schemeless "host:port" (defaulting to http) per spec.md §4.8 step 9.
func buildPeer(rawURL string) (UpstreamPeer, error) {
	candidate := rawURL
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return UpstreamPeer{}, fmt.Errorf("invalid upstream url %q: %w", rawURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	useTLS := scheme == "https"

	host := u.Hostname()
	portStr := u.Port()
	var port int
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return UpstreamPeer{}, fmt.Errorf("invalid upstream port in %q: %w", rawURL, err)
		}
	} else if useTLS {
		port = 443
	} else {
		port = 80
	}

	peer := UpstreamPeer{Host: host, Port: port, TLS: useTLS}
	if useTLS {
		peer.SNI = host
	}
	return peer, nil
}
