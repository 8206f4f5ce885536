package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	discoverygrpc "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	serverv3 "github.com/envoyproxy/go-control-plane/pkg/server/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/wso2/gateway-core/pkg/metrics"
)

// Server is the push-channel gRPC server (C5): a single ADS endpoint that
// streams Snapshot resources to data-plane subscribers as they change.
//
// Grounded on gateway-controller/pkg/policyxds.Server, trimmed to the
// single-resource-type case (no combined policy/api-key cache) since this
// gateway distributes exactly one resource kind: the Snapshot.
type Server struct {
	grpcServer *grpc.Server
	channel    *Channel
	bind       string
	log        *slog.Logger
}

// NewServer builds the gRPC server and registers it as an
// AggregatedDiscoveryServiceServer over the Channel's LinearCache.
func NewServer(channel *Channel, bind string, log *slog.Logger) *Server {
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	callbacks := &serverCallbacks{log: log}
	xdsServer := serverv3.NewServer(context.Background(), channel.Cache(), callbacks)
	discoverygrpc.RegisterAggregatedDiscoveryServiceServer(grpcServer, xdsServer)

	return &Server{
		grpcServer: grpcServer,
		channel:    channel,
		bind:       bind,
		log:        log,
	}
}

// Serve listens and blocks, serving ADS requests until the listener fails
// or Stop is called.
func (s *Server) Serve() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}
	s.log.Info("snapshot push channel listening", slog.String("bind", s.bind))
	if err := s.grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("serve ads: %w", err)
	}
	return nil
}

// Stop gracefully drains in-flight streams before returning.
func (s *Server) Stop() {
	s.log.Info("snapshot push channel stopping")
	s.grpcServer.GracefulStop()
}

type serverCallbacks struct {
	log *slog.Logger
}

func (cb *serverCallbacks) OnStreamOpen(ctx context.Context, streamID int64, typeURL string) error {
	cb.log.Debug("ads stream opened", slog.Int64("stream_id", streamID), slog.String("type_url", typeURL))
	metrics.XDSStreamsActive.Inc()
	return nil
}

func (cb *serverCallbacks) OnStreamClosed(streamID int64, node *core.Node) {
	cb.log.Debug("ads stream closed", slog.Int64("stream_id", streamID), slog.String("node_id", node.GetId()))
	metrics.XDSStreamsActive.Dec()
}

func (cb *serverCallbacks) OnStreamRequest(streamID int64, req *discoverygrpc.DiscoveryRequest) error {
	cb.log.Debug("ads stream request",
		slog.Int64("stream_id", streamID),
		slog.String("type_url", req.GetTypeUrl()),
		slog.String("version", req.GetVersionInfo()))
	return nil
}

func (cb *serverCallbacks) OnStreamResponse(ctx context.Context, streamID int64, req *discoverygrpc.DiscoveryRequest, resp *discoverygrpc.DiscoveryResponse) {
	cb.log.Debug("ads stream response",
		slog.Int64("stream_id", streamID),
		slog.String("version", resp.GetVersionInfo()),
		slog.Int("resource_count", len(resp.GetResources())))
}

func (cb *serverCallbacks) OnFetchRequest(ctx context.Context, req *discoverygrpc.DiscoveryRequest) error {
	return nil
}

func (cb *serverCallbacks) OnFetchResponse(req *discoverygrpc.DiscoveryRequest, resp *discoverygrpc.DiscoveryResponse) {
}

func (cb *serverCallbacks) OnDeltaStreamOpen(ctx context.Context, streamID int64, typeURL string) error {
	return nil
}

func (cb *serverCallbacks) OnDeltaStreamClosed(streamID int64, node *core.Node) {}

func (cb *serverCallbacks) OnStreamDeltaRequest(streamID int64, req *discoverygrpc.DeltaDiscoveryRequest) error {
	return nil
}

func (cb *serverCallbacks) OnStreamDeltaResponse(streamID int64, req *discoverygrpc.DeltaDiscoveryRequest, resp *discoverygrpc.DeltaDiscoveryResponse) {
}
