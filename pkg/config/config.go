// Package config loads CP/DP configuration from a TOML file pointed to by
// GATEWAY_CP_CONFIG / GATEWAY_DP_CONFIG, with individual keys overridable by
// environment variables prefixed GATEWAY_CP__ / GATEWAY_DP__ using "__" as
// the hierarchy separator. Grounded on
// gateway-controller/pkg/config/config.go's koanf composition.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// LoggingConfig is shared by CP and DP.
type LoggingConfig struct {
	Level       string `koanf:"level"`
	JSON        bool   `koanf:"json"`
	RollingFile string `koanf:"rolling_file"`
}

// CPConfig is the control plane's configuration surface (spec.md §6).
type CPConfig struct {
	Bind        string        `koanf:"bind"`
	GRPCBind    string        `koanf:"grpc_bind"`
	DatabaseURL string        `koanf:"database_url"`
	Logging     LoggingConfig `koanf:"logging"`
}

// ControlPlaneRef points the DP at the CP's ADS endpoint.
type ControlPlaneRef struct {
	GRPCEndpoint string `koanf:"grpc_endpoint"`
}

// ListenerConfig is the DP's own ingress bind address.
type ListenerConfig struct {
	Bind string `koanf:"bind"`
}

// LimitsConfig bounds request body handling on the DP.
type LimitsConfig struct {
	MaxBodyBytes          int64 `koanf:"max_body_bytes"`
	PreUpstreamBodyBytes  int64 `koanf:"pre_upstream_body_bytes"`
}

// DPConfig is the data plane's configuration surface (spec.md §6).
type DPConfig struct {
	Listener      ListenerConfig   `koanf:"listener"`
	ControlPlane  ControlPlaneRef  `koanf:"control_plane"`
	Logging       LoggingConfig    `koanf:"logging"`
	Limits        LimitsConfig     `koanf:"limits"`
}

func defaultCP() CPConfig {
	return CPConfig{
		Bind:        ":8080",
		GRPCBind:    ":18000",
		DatabaseURL: "file:gateway.db",
		Logging:     LoggingConfig{Level: "info", JSON: true},
	}
}

func defaultDP() DPConfig {
	return DPConfig{
		Listener:     ListenerConfig{Bind: ":10080"},
		ControlPlane: ControlPlaneRef{GRPCEndpoint: "127.0.0.1:18000"},
		Logging:      LoggingConfig{Level: "info", JSON: true},
		Limits:       LimitsConfig{MaxBodyBytes: 10 << 20, PreUpstreamBodyBytes: 1 << 20},
	}
}

// LoadCP loads CP configuration from path (if non-empty) layered under
// defaults, then applies GATEWAY_CP__ environment overrides.
func LoadCP(path string) (*CPConfig, error) {
	cfg := defaultCP()
	if err := load(path, "GATEWAY_CP__", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDP loads DP configuration from path (if non-empty) layered under
// defaults, then applies GATEWAY_DP__ environment overrides.
func LoadDP(path string) (*DPConfig, error) {
	cfg := defaultDP()
	if err := load(path, "GATEWAY_DP__", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path, envPrefix string, out interface{}) error {
	k := koanf.New(".")

	// Seed koanf with the struct's zero/defaults so file/env only override.
	if err := k.Load(structs.Provider(out, "koanf"), nil); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}

	decoderCfg := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           out,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}
	if err := k.UnmarshalWithConf("", out, decoderCfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
