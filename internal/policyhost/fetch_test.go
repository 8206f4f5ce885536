package policyhost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/wso2/gateway-core/pkg/gwerrors"
)

func TestDefaultFetcherFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.wasm")
	want := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got, err := (defaultFetcher{}).Fetch(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDefaultFetcherHTTP(t *testing.T) {
	want := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(want)
	}))
	defer srv.Close()

	got, err := (defaultFetcher{}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDefaultFetcherHTTPNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := (defaultFetcher{}).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestDefaultFetcherRejectsOCIScheme(t *testing.T) {
	_, err := (defaultFetcher{}).Fetch(context.Background(), "oci://registry/policy:latest")
	if !errors.Is(err, gwerrors.ErrUnsupportedURI) {
		t.Fatalf("expected ErrUnsupportedURI, got %v", err)
	}
}

func TestDefaultFetcherRejectsUnknownScheme(t *testing.T) {
	_, err := (defaultFetcher{}).Fetch(context.Background(), "ftp://example.com/p.wasm")
	if !errors.Is(err, gwerrors.ErrUnsupportedURI) {
		t.Fatalf("expected ErrUnsupportedURI, got %v", err)
	}
}
