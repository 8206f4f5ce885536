package proxyglue

import (
	"errors"
	"testing"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
)

func TestSelectUpstreamRoundRobinsFairly(t *testing.T) {
	route := &model.Route{ID: "r1", Upstreams: []model.Upstream{{URL: "http://a"}, {URL: "http://b"}, {URL: "http://c"}}}

	counts := map[string]int{}
	for i := 0; i < 9; i++ {
		u, err := selectUpstream(route)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[u.URL]++
	}
	for _, url := range []string{"http://a", "http://b", "http://c"} {
		if counts[url] != 3 {
			t.Fatalf("expected each upstream picked 3 times over 9 calls, got %v", counts)
		}
	}
}

func TestSelectUpstreamEmptyPoolFails(t *testing.T) {
	route := &model.Route{ID: "r1"}
	if _, err := selectUpstream(route); !errors.Is(err, gwerrors.ErrNoUpstream) {
		t.Fatalf("expected ErrNoUpstream, got %v", err)
	}
}

func TestSelectUpstreamByHintExactMatch(t *testing.T) {
	route := &model.Route{ID: "r1", Upstreams: []model.Upstream{{URL: "http://a"}, {URL: "http://b"}}}
	u, err := selectUpstreamByHint(route, "http://b")
	if err != nil || u.URL != "http://b" {
		t.Fatalf("expected http://b, got %+v err=%v", u, err)
	}
}

func TestSelectUpstreamByHintNoMatchFails(t *testing.T) {
	route := &model.Route{ID: "r1", Upstreams: []model.Upstream{{URL: "http://a"}}}
	if _, err := selectUpstreamByHint(route, "http://ghost"); !errors.Is(err, gwerrors.ErrNoUpstream) {
		t.Fatalf("expected ErrNoUpstream, got %v", err)
	}
}
