// Package storage persists PolicySpecs and RouteSpecs. Two backends satisfy
// the same Store interface: SQLiteStore (production) and MemoryStore
// (tests). Grounded on gateway-controller/pkg/storage.
package storage

import (
	"context"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

// Store is the persistence interface for policies and routes (C2). All
// operations fail with a wrapped gwerrors.ErrStorage on I/O failure;
// duplicate-key conflicts surface as gwerrors.ErrConflict.
type Store interface {
	InsertPolicy(ctx context.Context, p *model.PolicySpec) error
	ListPolicies(ctx context.Context) ([]*model.PolicySpec, error)
	// GetPolicy returns every version of id when version is empty, or the
	// single matching version otherwise.
	GetPolicy(ctx context.Context, id, version string) ([]*model.PolicySpec, error)
	GetPolicyVersion(ctx context.Context, id, version string) (*model.PolicySpec, error)

	InsertRoute(ctx context.Context, r *model.RouteSpec) error
	ListRoutes(ctx context.Context) ([]*model.RouteSpec, error)
	GetRoute(ctx context.Context, id string) (*model.RouteSpec, error)
	// UpdateRoute returns the number of rows affected (0 if id did not exist).
	UpdateRoute(ctx context.Context, r *model.RouteSpec) (int64, error)
	DeleteRoute(ctx context.Context, id string) error

	// Snapshot reads every route and every policy referenced by any route,
	// within one logical read-set (a transaction for SQLiteStore, a single
	// mutex critical section for MemoryStore), per spec.md §9's note on
	// read-set consistency.
	Snapshot(ctx context.Context) (routes []*model.RouteSpec, policies map[model.PolicyKey]*model.PolicySpec, err error)

	Close() error
}

// wrapStorage wraps a low-level error as gwerrors.ErrStorage while keeping
// the original message for logs.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storageError{op: op, err: err}
}

type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string { return e.op + ": " + e.err.Error() }
func (e *storageError) Unwrap() []error { return []error{gwerrors.ErrStorage, e.err} }
