package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

func samplePolicy(id, version string) *model.PolicySpec {
	return &model.PolicySpec{ID: id, Version: version, SHA256: "abc", SupportedStages: []model.Stage{model.StagePreUpstream}}
}

func sampleRoute(id string) *model.RouteSpec {
	return &model.RouteSpec{ID: id, Upstreams: []model.Upstream{{URL: "http://backend"}}}
}

func TestMemoryStorePolicyInsertAndConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertPolicy(ctx, samplePolicy("p1", "1.0.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.InsertPolicy(ctx, samplePolicy("p1", "1.0.0")); !errors.Is(err, gwerrors.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate insert, got %v", err)
	}
}

func TestMemoryStoreGetPolicyFiltersByVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertPolicy(ctx, samplePolicy("p1", "1.0.0"))
	s.InsertPolicy(ctx, samplePolicy("p1", "2.0.0"))

	all, err := s.GetPolicy(ctx, "p1", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 versions, got %v err=%v", all, err)
	}

	one, err := s.GetPolicy(ctx, "p1", "2.0.0")
	if err != nil || len(one) != 1 || one[0].Version != "2.0.0" {
		t.Fatalf("expected single version 2.0.0, got %v err=%v", one, err)
	}

	if _, err := s.GetPolicy(ctx, "ghost", ""); !errors.Is(err, gwerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreGetPolicyVersionMissingReturnsNilNil(t *testing.T) {
	s := NewMemoryStore()
	p, err := s.GetPolicyVersion(context.Background(), "ghost", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil policy for a missing key, got %v", p)
	}
}

func TestMemoryStoreRouteLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertRoute(ctx, sampleRoute("r1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.InsertRoute(ctx, sampleRoute("r1")); !errors.Is(err, gwerrors.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := s.GetRoute(ctx, "r1")
	if err != nil || got.ID != "r1" {
		t.Fatalf("unexpected route/err: %v %v", got, err)
	}

	updated := sampleRoute("r1")
	updated.LB = "round_robin"
	rows, err := s.UpdateRoute(ctx, updated)
	if err != nil || rows != 1 {
		t.Fatalf("expected 1 row updated, got %d err=%v", rows, err)
	}

	rows, err = s.UpdateRoute(ctx, sampleRoute("ghost"))
	if err != nil || rows != 0 {
		t.Fatalf("expected 0 rows for a missing id, got %d err=%v", rows, err)
	}

	if err := s.DeleteRoute(ctx, "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.DeleteRoute(ctx, "r1"); !errors.Is(err, gwerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting an already-deleted route, got %v", err)
	}
}

func TestMemoryStoreSnapshotReturnsRoutesAndReferencedPolicies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertPolicy(ctx, samplePolicy("p1", "1.0.0"))
	r := sampleRoute("r1")
	r.Policies = []model.RoutePolicy{{Stage: model.StagePreUpstream, ID: "p1", Version: "1.0.0"}}
	s.InsertRoute(ctx, r)

	routes, policies, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(routes) != 1 || len(policies) != 1 {
		t.Fatalf("expected 1 route and 1 policy, got %d routes %d policies", len(routes), len(policies))
	}
}

func TestMemoryStoreCloneIsolatesCallerMutation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	route := sampleRoute("r1")
	s.InsertRoute(ctx, route)

	got, _ := s.GetRoute(ctx, "r1")
	got.Upstreams[0].URL = "http://mutated"

	got2, _ := s.GetRoute(ctx, "r1")
	if got2.Upstreams[0].URL != "http://backend" {
		t.Fatalf("expected store's internal copy to be unaffected by caller mutation, got %q", got2.Upstreams[0].URL)
	}
}
