package dpsync

import (
	"context"
	"errors"
	"testing"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

type fakePolicyLoader struct {
	returns []model.PolicyKey
	gotArtifacts []model.PolicyArtifact
}

func (f *fakePolicyLoader) Preload(_ context.Context, artifacts []model.PolicyArtifact) []model.PolicyKey {
	f.gotArtifacts = artifacts
	return f.returns
}

func TestMaterializeConvertsRoutesToPointersAndPreloadsPolicies(t *testing.T) {
	snap := &model.Snapshot{
		Version: 7,
		Routes: []model.Route{
			{ID: "r1", PathPrefix: "/a"},
			{ID: "r2", PathPrefix: "/b"},
		},
		PolicyArtifacts: []model.PolicyArtifact{
			{ID: "p1", Version: "1.0.0"},
		},
	}
	loader := &fakePolicyLoader{returns: []model.PolicyKey{{ID: "p1", Version: "1.0.0"}}}

	runtime, err := materialize(context.Background(), snap, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runtime.Version != 7 {
		t.Fatalf("expected version to carry over, got %d", runtime.Version)
	}
	if len(runtime.Routes) != 2 || runtime.Routes[0].ID != "r1" || runtime.Routes[1].ID != "r2" {
		t.Fatalf("unexpected routes: %+v", runtime.Routes)
	}
	if len(loader.gotArtifacts) != 1 || loader.gotArtifacts[0].ID != "p1" {
		t.Fatalf("expected the snapshot's policy artifacts to be handed to the loader, got %+v", loader.gotArtifacts)
	}
	if !runtime.Policies.Loaded(model.PolicyKey{ID: "p1", Version: "1.0.0"}) {
		t.Fatal("expected the loaded policy key to be reflected in the registry")
	}
	if runtime.Policies.Loaded(model.PolicyKey{ID: "ghost", Version: "1.0.0"}) {
		t.Fatal("expected an unrelated policy key to report as not loaded")
	}
}

func TestMaterializeEmptySnapshotProducesEmptyRuntimeSnapshot(t *testing.T) {
	snap := &model.Snapshot{Version: 1}
	loader := &fakePolicyLoader{}

	runtime, err := materialize(context.Background(), snap, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runtime.Routes) != 0 {
		t.Fatalf("expected no routes, got %+v", runtime.Routes)
	}
	if runtime.Policies.Loaded(model.PolicyKey{ID: "anything", Version: "1.0.0"}) {
		t.Fatal("expected an empty registry to report nothing as loaded")
	}
}

func TestMaterializeRejectsSnapshotWithInvalidBindingJSON(t *testing.T) {
	snap := &model.Snapshot{
		Version: 9,
		Routes: []model.Route{
			{
				ID: "r1",
				Bindings: []model.PolicyBinding{
					{ID: "p1", Version: "1.0.0", EffectiveConfigJSON: `{"rps":100}`},
				},
			},
			{
				ID: "r2",
				Bindings: []model.PolicyBinding{
					{ID: "p2", Version: "1.0.0", EffectiveConfigJSON: `not json`},
				},
			},
		},
	}
	loader := &fakePolicyLoader{}

	runtime, err := materialize(context.Background(), snap, loader)
	if err == nil {
		t.Fatal("expected an error for the route with invalid effective_config_json")
	}
	if !errors.Is(err, gwerrors.ErrSnapshotBuild) {
		t.Fatalf("expected errors.Is(err, gwerrors.ErrSnapshotBuild), got %v", err)
	}
	if runtime != nil {
		t.Fatalf("expected a nil RuntimeSnapshot on rejection, got %+v", runtime)
	}
}
