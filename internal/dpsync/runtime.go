package dpsync

import (
	"sync/atomic"

	"github.com/wso2/gateway-core/pkg/model"
)

// RuntimeStore holds the data plane's current RuntimeSnapshot behind a
// lock-free atomic pointer, per spec.md §5's "readers never block on a
// snapshot swap" requirement. A failed fetch or a dropped stream never
// clears the pointer: the previous snapshot keeps serving traffic until a
// new one successfully replaces it.
type RuntimeStore struct {
	current atomic.Pointer[model.RuntimeSnapshot]
}

// NewRuntimeStore returns an empty store; Load returns nil until the first
// snapshot is swapped in.
func NewRuntimeStore() *RuntimeStore {
	return &RuntimeStore{}
}

// Load returns the current RuntimeSnapshot, or nil if none has been
// received yet.
func (s *RuntimeStore) Load() *model.RuntimeSnapshot {
	return s.current.Load()
}

// Swap atomically replaces the current snapshot.
func (s *RuntimeStore) Swap(snap *model.RuntimeSnapshot) {
	s.current.Store(snap)
}
