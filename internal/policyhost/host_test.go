package policyhost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"testing"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

// emptyWasmModule is the minimal valid WebAssembly module: just the magic
// number and version, no sections. wazero compiles it successfully even
// though it exports nothing (evaluation against it is exercised separately
// and is expected to fail for missing exports).
var emptyWasmModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

type fakeWasmFetcher struct {
	bytes []byte
	err   error
}

func (f fakeWasmFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return f.bytes, f.err
}

func shaOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newTestHost(t *testing.T, fetcher Fetcher) *Host {
	t.Helper()
	ctx := context.Background()
	h := NewHost(ctx, DefaultConfig(), slog.Default())
	h.fetcher = fetcher
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func TestHostLoadSucceedsAndCaches(t *testing.T) {
	h := newTestHost(t, fakeWasmFetcher{bytes: emptyWasmModule})
	artifact := model.PolicyArtifact{ID: "p1", Version: "1.0.0", WasmURI: "file:///p1.wasm", SHA256: shaOf(emptyWasmModule)}

	if err := h.Load(context.Background(), artifact); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Loaded(artifact.Key()) {
		t.Fatal("expected the artifact to be cached as loaded")
	}
}

func TestHostLoadRejectsShaMismatch(t *testing.T) {
	h := newTestHost(t, fakeWasmFetcher{bytes: emptyWasmModule})
	artifact := model.PolicyArtifact{ID: "p1", Version: "1.0.0", WasmURI: "file:///p1.wasm", SHA256: "0000000000000000000000000000000000000000000000000000000000000000"}

	err := h.Load(context.Background(), artifact)
	if !errors.Is(err, gwerrors.ErrShaMismatch) {
		t.Fatalf("expected ErrShaMismatch, got %v", err)
	}
	if h.Loaded(artifact.Key()) {
		t.Fatal("expected the artifact to not be cached after a sha mismatch")
	}
}

func TestHostLoadAcceptsSha256PrefixCaseInsensitively(t *testing.T) {
	h := newTestHost(t, fakeWasmFetcher{bytes: emptyWasmModule})
	artifact := model.PolicyArtifact{ID: "p1", Version: "1.0.0", WasmURI: "file:///p1.wasm", SHA256: "SHA256:" + shaOf(emptyWasmModule)}

	if err := h.Load(context.Background(), artifact); err != nil {
		t.Fatalf("expected the sha256: prefix to be accepted case-insensitively, got %v", err)
	}
}

func TestHostLoadRejectsFetchFailure(t *testing.T) {
	h := newTestHost(t, fakeWasmFetcher{err: errors.New("network down")})
	artifact := model.PolicyArtifact{ID: "p1", Version: "1.0.0", WasmURI: "file:///p1.wasm", SHA256: "irrelevant"}

	if err := h.Load(context.Background(), artifact); !errors.Is(err, gwerrors.ErrArtifactFetch) {
		t.Fatalf("expected ErrArtifactFetch, got %v", err)
	}
}

func TestHostLoadRejectsInvalidWasmBytes(t *testing.T) {
	garbage := []byte("not a wasm module")
	h := newTestHost(t, fakeWasmFetcher{bytes: garbage})
	artifact := model.PolicyArtifact{ID: "p1", Version: "1.0.0", WasmURI: "file:///p1.wasm", SHA256: shaOf(garbage)}

	if err := h.Load(context.Background(), artifact); !errors.Is(err, gwerrors.ErrInvalidWasm) {
		t.Fatalf("expected ErrInvalidWasm, got %v", err)
	}
}

func TestHostPreloadSkipsAlreadyLoadedAndContinuesPastFailures(t *testing.T) {
	h := newTestHost(t, fakeWasmFetcher{bytes: emptyWasmModule})
	good := model.PolicyArtifact{ID: "good", Version: "1.0.0", WasmURI: "file:///good.wasm", SHA256: shaOf(emptyWasmModule)}
	bad := model.PolicyArtifact{ID: "bad", Version: "1.0.0", WasmURI: "file:///bad.wasm", SHA256: "deadbeef"}

	loaded := h.Preload(context.Background(), []model.PolicyArtifact{good, bad})
	if len(loaded) != 1 || loaded[0] != good.Key() {
		t.Fatalf("expected only the good artifact to load, got %v", loaded)
	}

	// Preloading again must not error or duplicate: Loaded short-circuits.
	loaded = h.Preload(context.Background(), []model.PolicyArtifact{good})
	if len(loaded) != 1 {
		t.Fatalf("expected re-preloading an already-loaded artifact to be a no-op success, got %v", loaded)
	}
}

func TestHostEvaluatePreUpstreamRejectsUnknownPolicy(t *testing.T) {
	h := newTestHost(t, fakeWasmFetcher{bytes: emptyWasmModule})
	binding := model.PolicyBinding{Stage: model.StagePreUpstream, ID: "ghost", Version: "1.0.0"}

	_, err := h.EvaluatePreUpstream(context.Background(), binding, model.RequestView{})
	if !errors.Is(err, gwerrors.ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestHostEvaluatePreUpstreamRejectsWrongStage(t *testing.T) {
	h := newTestHost(t, fakeWasmFetcher{bytes: emptyWasmModule})
	artifact := model.PolicyArtifact{ID: "p1", Version: "1.0.0", WasmURI: "file:///p1.wasm", SHA256: shaOf(emptyWasmModule)}
	if err := h.Load(context.Background(), artifact); err != nil {
		t.Fatalf("setup: %v", err)
	}

	binding := model.PolicyBinding{Stage: model.StagePostResponse, ID: "p1", Version: "1.0.0"}
	_, err := h.EvaluatePreUpstream(context.Background(), binding, model.RequestView{})
	if !errors.Is(err, gwerrors.ErrUnsupportedStage) {
		t.Fatalf("expected ErrUnsupportedStage, got %v", err)
	}
}

func TestHostEvaluatePreUpstreamMissingExportsFailsExecution(t *testing.T) {
	h := newTestHost(t, fakeWasmFetcher{bytes: emptyWasmModule})
	artifact := model.PolicyArtifact{ID: "p1", Version: "1.0.0", WasmURI: "file:///p1.wasm", SHA256: shaOf(emptyWasmModule)}
	if err := h.Load(context.Background(), artifact); err != nil {
		t.Fatalf("setup: %v", err)
	}

	binding := model.PolicyBinding{Stage: model.StagePreUpstream, ID: "p1", Version: "1.0.0"}
	_, err := h.EvaluatePreUpstream(context.Background(), binding, model.RequestView{Method: "GET", Path: "/x"})
	if !errors.Is(err, gwerrors.ErrGuestExecution) {
		t.Fatalf("expected ErrGuestExecution for a module missing alloc/evaluate_pre_upstream exports, got %v", err)
	}
}
