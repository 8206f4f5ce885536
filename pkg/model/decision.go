package model

import "encoding/json"

// RequestView is the read-only view of an in-flight request a policy
// evaluates against. Headers preserve the order they were iterated from
// the incoming request.
type RequestView struct {
	RequestID string
	Method    string
	Path      string
	Host      string
	Headers   []HeaderPair
}

// HeaderPair is a single header line, preserving repeated names.
type HeaderPair struct {
	Name  string
	Value string
}

// HeaderMutation describes one change a policy wants applied to outgoing
// headers: insert-or-replace by name when Overwrite is true, append
// otherwise.
type HeaderMutation struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Overwrite bool   `json:"overwrite"`
}

// RequestRewrite optionally replaces the outgoing method and/or path.
type RequestRewrite struct {
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`
}

// DirectResponse asks the proxy to answer the client directly instead of
// forwarding upstream. Not honored at the pre_upstream stage (see
// PolicyDecision doc).
type DirectResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// PolicyDecision is the result of one policy evaluation. At the
// pre_upstream stage only RequestHeaders, RequestRewrite, and
// UpstreamHint are honored; a non-empty ResponseHeaders, a present
// DirectResponse, or a present RequestBodyPatch is UnsupportedDecisionAction.
type PolicyDecision struct {
	RequestHeaders    []HeaderMutation `json:"request_headers,omitempty"`
	RequestRewrite    *RequestRewrite  `json:"request_rewrite,omitempty"`
	UpstreamHint      string           `json:"upstream_hint,omitempty"`
	DirectResponse    *DirectResponse  `json:"direct_response,omitempty"`
	RequestBodyPatch  json.RawMessage  `json:"request_body_patch,omitempty"`
	ResponseHeaders   []HeaderMutation `json:"response_headers,omitempty"`
}

// HasUnsupportedPreUpstreamAction reports whether d carries any field the
// pre_upstream action policy does not honor.
func (d *PolicyDecision) HasUnsupportedPreUpstreamAction() bool {
	if d == nil {
		return false
	}
	return d.DirectResponse != nil || len(d.RequestBodyPatch) > 0 || len(d.ResponseHeaders) > 0
}

// Compose merges other onto d per the §4.6 composition rule: header lists
// append, everything else is last-write-wins (a later, non-empty value in
// other replaces d's).
func (d *PolicyDecision) Compose(other *PolicyDecision) {
	if other == nil {
		return
	}
	d.RequestHeaders = append(d.RequestHeaders, other.RequestHeaders...)
	d.ResponseHeaders = append(d.ResponseHeaders, other.ResponseHeaders...)
	if other.RequestRewrite != nil {
		d.RequestRewrite = other.RequestRewrite
	}
	if other.UpstreamHint != "" {
		d.UpstreamHint = other.UpstreamHint
	}
	if other.DirectResponse != nil {
		d.DirectResponse = other.DirectResponse
	}
	if len(other.RequestBodyPatch) > 0 {
		d.RequestBodyPatch = other.RequestBodyPatch
	}
}
