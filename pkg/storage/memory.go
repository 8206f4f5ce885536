package storage

import (
	"context"
	"sync"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

// MemoryStore is an in-process Store backed by a single RWMutex, used in
// tests and anywhere durability is not required. Mirrors the shape of
// gateway-controller/pkg/storage/memory.go.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[model.PolicyKey]*model.PolicySpec
	routes   map[string]*model.RouteSpec
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[model.PolicyKey]*model.PolicySpec),
		routes:   make(map[string]*model.RouteSpec),
	}
}

func clonePolicy(p *model.PolicySpec) *model.PolicySpec {
	cp := *p
	cp.SupportedStages = append([]model.Stage(nil), p.SupportedStages...)
	return &cp
}

func cloneRoute(r *model.RouteSpec) *model.RouteSpec {
	cp := *r
	cp.Upstreams = append([]model.Upstream(nil), r.Upstreams...)
	cp.Policies = append([]model.RoutePolicy(nil), r.Policies...)
	cp.MatchRules.Method = append([]string(nil), r.MatchRules.Method...)
	return &cp
}

func (m *MemoryStore) InsertPolicy(_ context.Context, p *model.PolicySpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.Key()
	if _, exists := m.policies[key]; exists {
		return gwerrors.ErrConflict
	}
	m.policies[key] = clonePolicy(p)
	return nil
}

func (m *MemoryStore) ListPolicies(_ context.Context) ([]*model.PolicySpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.PolicySpec, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, clonePolicy(p))
	}
	return out, nil
}

func (m *MemoryStore) GetPolicy(_ context.Context, id, version string) ([]*model.PolicySpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PolicySpec
	for k, p := range m.policies {
		if k.ID != id {
			continue
		}
		if version != "" && k.Version != version {
			continue
		}
		out = append(out, clonePolicy(p))
	}
	if len(out) == 0 {
		return nil, gwerrors.ErrNotFound
	}
	return out, nil
}

func (m *MemoryStore) GetPolicyVersion(_ context.Context, id, version string) (*model.PolicySpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[model.PolicyKey{ID: id, Version: version}]
	if !ok {
		return nil, nil
	}
	return clonePolicy(p), nil
}

func (m *MemoryStore) InsertRoute(_ context.Context, r *model.RouteSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.routes[r.ID]; exists {
		return gwerrors.ErrConflict
	}
	m.routes[r.ID] = cloneRoute(r)
	return nil
}

func (m *MemoryStore) ListRoutes(_ context.Context) ([]*model.RouteSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.RouteSpec, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, cloneRoute(r))
	}
	return out, nil
}

func (m *MemoryStore) GetRoute(_ context.Context, id string) (*model.RouteSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, gwerrors.ErrNotFound
	}
	return cloneRoute(r), nil
}

func (m *MemoryStore) UpdateRoute(_ context.Context, r *model.RouteSpec) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[r.ID]; !ok {
		return 0, nil
	}
	m.routes[r.ID] = cloneRoute(r)
	return 1, nil
}

func (m *MemoryStore) DeleteRoute(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[id]; !ok {
		return gwerrors.ErrNotFound
	}
	delete(m.routes, id)
	return nil
}

func (m *MemoryStore) Snapshot(_ context.Context) ([]*model.RouteSpec, map[model.PolicyKey]*model.PolicySpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	routes := make([]*model.RouteSpec, 0, len(m.routes))
	for _, r := range m.routes {
		routes = append(routes, cloneRoute(r))
	}
	policies := make(map[model.PolicyKey]*model.PolicySpec, len(m.policies))
	for k, p := range m.policies {
		policies[k] = clonePolicy(p)
	}
	return routes, policies, nil
}

func (m *MemoryStore) Close() error { return nil }
