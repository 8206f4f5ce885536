package policyhost

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/wso2/gateway-core/pkg/gwerrors"
)

// Fetcher retrieves artifact bytes from a wasm_uri.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// defaultFetcher supports file:// and http(s)://; oci:// is reserved and
// rejected per spec.md §4.6.
type defaultFetcher struct {
	client http.Client
}

func (f defaultFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse wasm_uri %q: %w", uri, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return os.ReadFile(u.Path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: unexpected status %d", uri, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	case "oci":
		return nil, fmt.Errorf("%w: oci:// is reserved", gwerrors.ErrUnsupportedURI)
	default:
		return nil, fmt.Errorf("%w: scheme %q", gwerrors.ErrUnsupportedURI, u.Scheme)
	}
}
