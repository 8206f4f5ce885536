package snapshot

import (
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/wso2/gateway-core/pkg/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	snap := &model.Snapshot{
		Version: 7,
		Routes: []model.Route{
			{ID: "r1", PathPrefix: "/v1", Methods: []string{"GET"}, Upstreams: []model.Upstream{{URL: "http://backend:8080"}}},
		},
		PolicyArtifacts: []model.PolicyArtifact{
			{ID: "p1", Version: "1.0.0", WasmURI: "file:///p1.wasm", SHA256: "abc"},
		},
	}

	resource, err := Encode(snap)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if resource.TypeUrl != TypeURL {
		t.Fatalf("expected type url %q, got %q", TypeURL, resource.TypeUrl)
	}

	wire := wrapAsWireResource(t, resource)

	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Version != snap.Version {
		t.Fatalf("expected version %d, got %d", snap.Version, got.Version)
	}
	if len(got.Routes) != 1 || got.Routes[0].ID != "r1" {
		t.Fatalf("expected route r1 to round-trip, got %+v", got.Routes)
	}
	if len(got.PolicyArtifacts) != 1 || got.PolicyArtifacts[0].SHA256 != "abc" {
		t.Fatalf("expected policy artifact to round-trip, got %+v", got.PolicyArtifacts)
	}
}

// wrapAsWireResource mirrors what go-control-plane's server does when it
// serializes a DiscoveryResponse: each types.Resource (our custom-TypeUrl
// Any) is itself packed into a second, generic Any before going out on the
// wire — see Decode's doc comment for why this test constructs that shape
// explicitly instead of handing Decode the resource straight from Encode.
func wrapAsWireResource(t *testing.T, resource *anypb.Any) *anypb.Any {
	t.Helper()
	outerValue, err := proto.Marshal(resource)
	if err != nil {
		t.Fatalf("marshal inner any: %v", err)
	}
	return &anypb.Any{
		TypeUrl: "type.googleapis.com/google.protobuf.Any",
		Value:   outerValue,
	}
}

func TestDecodeRejectsGarbageBytes(t *testing.T) {
	_, err := Decode(&anypb.Any{Value: []byte("not valid protobuf")})
	if err == nil {
		t.Fatal("expected an error decoding garbage bytes")
	}
}

func TestDecodeEmptySnapshot(t *testing.T) {
	empty := &model.Snapshot{Version: 1, Routes: []model.Route{}, PolicyArtifacts: []model.PolicyArtifact{}}
	resource, err := Encode(empty)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := Decode(wrapAsWireResource(t, resource))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Version != 1 || len(got.Routes) != 0 {
		t.Fatalf("unexpected decode of empty snapshot: %+v", got)
	}
}
