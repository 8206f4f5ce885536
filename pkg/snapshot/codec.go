package snapshot

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wso2/gateway-core/pkg/model"
)

// TypeURL is the custom xDS resource type this gateway distributes
// snapshots as, following the "wrap JSON in structpb.Struct inside
// anypb.Any with an overridden TypeUrl" idiom of
// gateway-controller/pkg/policyxds/snapshot.go's PolicyChainConfig.
const TypeURL = "gateway.wso2.org/v1.Snapshot"

// ResourceName is the single LinearCache resource name this gateway ever
// publishes under — the CP's push channel carries exactly one logical
// value (the latest Snapshot), never a named set of resources.
const ResourceName = "current"

// Encode marshals a Snapshot to JSON, wraps it in a structpb.Struct, and
// wraps that in an anypb.Any tagged with TypeURL so it can be stored as an
// xDS types.Resource.
func Encode(s *model.Snapshot) (*anypb.Any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("snapshot to map: %w", err)
	}
	st, err := structpb.NewStruct(asMap)
	if err != nil {
		return nil, fmt.Errorf("snapshot to struct: %w", err)
	}
	any, err := anypb.New(st)
	if err != nil {
		return nil, fmt.Errorf("wrap snapshot in any: %w", err)
	}
	any.TypeUrl = TypeURL
	return any, nil
}

// Decode reverses Encode. The xDS server double-wraps each resource: a
// types.Resource stored as our custom-TypeUrl Any gets packed into a second,
// generic google.protobuf.Any when go-control-plane serializes the
// DiscoveryResponse's Resources field, so the wire value must be unwrapped
// twice before it's a Struct again. Grounded on
// gateway-runtime/policy-engine/internal/xdsclient.ResourceHandler.HandlePolicyChainUpdate,
// which unwraps the identical double-Any for PolicyChainConfig resources.
func Decode(wireAny *anypb.Any) (*model.Snapshot, error) {
	inner := &anypb.Any{}
	if err := proto.Unmarshal(wireAny.GetValue(), inner); err != nil {
		return nil, fmt.Errorf("unwrap outer any: %w", err)
	}

	st := &structpb.Struct{}
	if err := proto.Unmarshal(inner.GetValue(), st); err != nil {
		return nil, fmt.Errorf("unwrap snapshot struct: %w", err)
	}

	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return nil, fmt.Errorf("struct to json: %w", err)
	}
	var s model.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("json to snapshot: %w", err)
	}
	return &s, nil
}
