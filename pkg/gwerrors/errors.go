// Package gwerrors defines the gateway's error taxonomy as errors.Is-friendly
// sentinels, generalizing the teacher's storage-only sentinel idiom
// (pkg/storage/errors.go) to every kind listed in spec.md §7.
package gwerrors

import "errors"

var (
	// ErrNotFound marks a lookup that found nothing; surfaced as HTTP 404.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate-key write; surfaced as HTTP 409.
	ErrConflict = errors.New("conflict")
	// ErrStorage marks an I/O failure in the store; surfaced as HTTP 500.
	ErrStorage = errors.New("storage error")
	// ErrSnapshotBuild marks a fatal error while assembling a snapshot
	// (e.g. a route references a policy that no longer exists). The
	// previously published snapshot is left untouched.
	ErrSnapshotBuild = errors.New("snapshot build error")
	// ErrArtifactFetch marks a failure to retrieve policy artifact bytes.
	ErrArtifactFetch = errors.New("artifact fetch error")
	// ErrShaMismatch marks a fetched artifact whose digest does not match
	// its declared sha256.
	ErrShaMismatch = errors.New("sha256 mismatch")
	// ErrInvalidWasm marks an artifact that failed static module validation.
	ErrInvalidWasm = errors.New("invalid wasm module")
	// ErrUnsupportedURI marks an artifact URI scheme the host does not fetch.
	ErrUnsupportedURI = errors.New("unsupported uri scheme")
	// ErrGuestRejected marks a policy that ran and explicitly rejected the
	// request.
	ErrGuestRejected = errors.New("guest rejected")
	// ErrGuestExecution marks a host-side failure invoking a policy module.
	ErrGuestExecution = errors.New("guest execution error")
	// ErrUnsupportedStage marks a binding whose stage the Policy Host does
	// not (yet) execute.
	ErrUnsupportedStage = errors.New("unsupported stage")
	// ErrUnsupportedDecisionAction marks a PolicyDecision field the calling
	// stage does not honor.
	ErrUnsupportedDecisionAction = errors.New("unsupported decision action")
	// ErrUnknownPolicy marks a binding whose (id, version) was never loaded.
	ErrUnknownPolicy = errors.New("unknown policy")
	// ErrNoRoute marks a request for which the matcher found no candidate.
	ErrNoRoute = errors.New("no route")
	// ErrNoUpstream marks a route with no usable upstream (empty pool, or an
	// upstream_hint that names none of the route's upstreams).
	ErrNoUpstream = errors.New("no upstream")
)

// ValidationError accumulates every problem found in one validation pass,
// rather than short-circuiting on the first failure.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "validation error"
	}
	msg := "validation error:"
	for _, d := range e.Details {
		msg += " " + d
	}
	return msg
}

// Add appends a detail, formatted as "<ctx> <msg>" when ctx is non-empty.
func (e *ValidationError) Add(ctx, msg string) {
	if ctx != "" {
		e.Details = append(e.Details, ctx+" "+msg)
	} else {
		e.Details = append(e.Details, msg)
	}
}

// Empty reports whether no problems were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Details) == 0
}

// AsError returns e as an error, or nil if it recorded nothing.
func (e *ValidationError) AsError() error {
	if e.Empty() {
		return nil
	}
	return e
}
