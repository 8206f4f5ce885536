package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

type fakeStoreReader struct {
	routes   []*model.RouteSpec
	policies map[model.PolicyKey]*model.PolicySpec
}

func (f *fakeStoreReader) Snapshot(_ context.Context) ([]*model.RouteSpec, map[model.PolicyKey]*model.PolicySpec, error) {
	return f.routes, f.policies, nil
}

func policyFixture(id, version string) *model.PolicySpec {
	return &model.PolicySpec{
		ID: id, Version: version, WasmURI: "file:///" + id + ".wasm", SHA256: "abc",
		SupportedStages: []model.Stage{model.StagePreUpstream},
		ConfigSchema:    map[string]any{"type": "object"},
		DefaultConfig:   map[string]any{"rps": float64(10)},
	}
}

func TestBuilderBuildSelfContainedSnapshot(t *testing.T) {
	store := &fakeStoreReader{
		routes: []*model.RouteSpec{
			{
				ID: "r1",
				Policies: []model.RoutePolicy{
					{Stage: model.StagePreUpstream, ID: "p1", Version: "1.0.0"},
				},
			},
		},
		policies: map[model.PolicyKey]*model.PolicySpec{
			{ID: "p1", Version: "1.0.0"}: policyFixture("p1", "1.0.0"),
		},
	}

	b := NewBuilder(store)
	snap, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(snap.Routes))
	}
	if len(snap.Routes[0].Bindings) != 1 || snap.Routes[0].Bindings[0].EffectiveConfigJSON == "" {
		t.Fatalf("expected a pre-merged effective_config_json on the binding, got %+v", snap.Routes[0].Bindings)
	}
	if len(snap.PolicyArtifacts) != 1 {
		t.Fatalf("expected exactly one deduplicated artifact, got %d", len(snap.PolicyArtifacts))
	}
}

func TestBuilderVersionMonotonicallyIncreases(t *testing.T) {
	store := &fakeStoreReader{}
	b := NewBuilder(store)

	first, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Version <= first.Version {
		t.Fatalf("expected version to increase, got %d then %d", first.Version, second.Version)
	}
}

func TestBuilderFailsClosedOnMissingPolicyReference(t *testing.T) {
	store := &fakeStoreReader{
		routes: []*model.RouteSpec{
			{ID: "r1", Policies: []model.RoutePolicy{{Stage: model.StagePreUpstream, ID: "ghost", Version: "1.0.0"}}},
		},
		policies: map[model.PolicyKey]*model.PolicySpec{},
	}
	b := NewBuilder(store)
	_, err := b.Build(context.Background())
	if !errors.Is(err, gwerrors.ErrSnapshotBuild) {
		t.Fatalf("expected ErrSnapshotBuild, got %v", err)
	}
}

func TestBuilderDeduplicatesArtifactsSharedAcrossRoutes(t *testing.T) {
	store := &fakeStoreReader{
		routes: []*model.RouteSpec{
			{ID: "r1", Policies: []model.RoutePolicy{{Stage: model.StagePreUpstream, ID: "shared", Version: "1.0.0"}}},
			{ID: "r2", Policies: []model.RoutePolicy{{Stage: model.StagePreUpstream, ID: "shared", Version: "1.0.0"}}},
		},
		policies: map[model.PolicyKey]*model.PolicySpec{
			{ID: "shared", Version: "1.0.0"}: policyFixture("shared", "1.0.0"),
		},
	}
	b := NewBuilder(store)
	snap, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.PolicyArtifacts) != 1 {
		t.Fatalf("expected one deduplicated artifact shared by two routes, got %d", len(snap.PolicyArtifacts))
	}
}

func TestBuilderRoutesOrderedByID(t *testing.T) {
	store := &fakeStoreReader{
		routes: []*model.RouteSpec{
			{ID: "zzz"},
			{ID: "aaa"},
		},
	}
	b := NewBuilder(store)
	snap, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Routes[0].ID != "aaa" || snap.Routes[1].ID != "zzz" {
		t.Fatalf("expected routes ordered by id, got %v", []string{snap.Routes[0].ID, snap.Routes[1].ID})
	}
}
