// Package model holds the typed value model shared by the control plane and
// the data plane: policy specs, route specs, bindings, and the snapshot
// shapes exchanged between them.
package model

import "fmt"

// Stage identifies a point in the request lifecycle a policy binding can
// execute at.
type Stage string

const (
	StagePreRoute     Stage = "pre_route"
	StagePreUpstream  Stage = "pre_upstream"
	StagePostResponse Stage = "post_response"
)

// ValidStages enumerates every stage a PolicySpec may declare support for.
var ValidStages = map[Stage]bool{
	StagePreRoute:     true,
	StagePreUpstream:  true,
	StagePostResponse: true,
}

// PolicyKey uniquely identifies a PolicySpec by (id, version).
type PolicyKey struct {
	ID      string `json:"id" db:"id"`
	Version string `json:"version" db:"version"`
}

func (k PolicyKey) String() string {
	return fmt.Sprintf("%s@%s", k.ID, k.Version)
}

// PolicySpec is a named, versioned sandboxed policy module.
type PolicySpec struct {
	ID              string          `json:"id" db:"id"`
	Version         string          `json:"version" db:"version"`
	WasmURI         string          `json:"wasm_uri" db:"wasm_uri"`
	SHA256          string          `json:"sha256" db:"sha256"`
	SupportedStages []Stage         `json:"supported_stages" db:"supported_stages"`
	ConfigSchema    map[string]any  `json:"config_schema" db:"config_schema"`
	DefaultConfig   map[string]any  `json:"default_config" db:"default_config"`
	// Config is a legacy alias for DefaultConfig, accepted on write for
	// back-compat with stores created before default_config existed.
	Config map[string]any `json:"config,omitempty" db:"-"`
}

// Key returns the PolicyKey for this spec.
func (p *PolicySpec) Key() PolicyKey {
	return PolicyKey{ID: p.ID, Version: p.Version}
}

// ResolvedDefaultConfig returns DefaultConfig, falling back to the legacy
// Config alias when DefaultConfig was never populated.
func (p *PolicySpec) ResolvedDefaultConfig() map[string]any {
	if len(p.DefaultConfig) > 0 {
		return p.DefaultConfig
	}
	if p.Config != nil {
		return p.Config
	}
	return map[string]any{}
}

// SupportsStage reports whether the policy declares support for stage.
func (p *PolicySpec) SupportsStage(stage Stage) bool {
	for _, s := range p.SupportedStages {
		if s == stage {
			return true
		}
	}
	return false
}

// PolicyArtifact is the wire-level artifact reference carried in a snapshot.
type PolicyArtifact struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	WasmURI string `json:"wasm_uri"`
	SHA256  string `json:"sha256"`
}

func (a PolicyArtifact) Key() PolicyKey {
	return PolicyKey{ID: a.ID, Version: a.Version}
}
