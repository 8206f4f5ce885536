// Package dpsync is the data-plane half of the push channel (C7): it
// subscribes to the control plane's ADS endpoint, decodes each Snapshot
// resource, preloads its policy artifacts, and atomically swaps the
// RuntimeStore. Grounded on
// gateway-runtime/policy-engine/internal/xdsclient.Client, narrowed from
// three resource types (policy chain, API key state, lazy resources) to
// the single Snapshot type this gateway distributes.
package dpsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	discoveryv3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wso2/gateway-core/pkg/metrics"
	"github.com/wso2/gateway-core/pkg/snapshot"
)

// Config configures the ADS client's connection and identity.
type Config struct {
	ServerAddress         string
	NodeID                string
	Cluster               string
	ConnectTimeout        time.Duration
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
}

// DefaultConfig returns a Config with the defaults named in spec.md §4.5.
func DefaultConfig(serverAddress string) Config {
	return Config{
		ServerAddress:         serverAddress,
		NodeID:                "gateway-dp",
		Cluster:               "gateway-dp-cluster",
		ConnectTimeout:        10 * time.Second,
		InitialReconnectDelay: 1 * time.Second,
		MaxReconnectDelay:     60 * time.Second,
	}
}

// Client maintains an ADS stream against the control plane and keeps a
// RuntimeStore current.
type Client struct {
	cfg        Config
	store      *RuntimeStore
	loader     PolicyLoader
	reconnect  *ReconnectManager
	log        *slog.Logger
	mu         sync.RWMutex
	connState  string
	version    string
	cancel     context.CancelFunc
	stoppedCh  chan struct{}
	stopOnce   sync.Once
}

// NewClient builds a Client. Call Start to begin streaming in the
// background.
func NewClient(cfg Config, store *RuntimeStore, loader PolicyLoader, log *slog.Logger) *Client {
	return &Client{
		cfg:       cfg,
		store:     store,
		loader:    loader,
		reconnect: NewReconnectManager(cfg.InitialReconnectDelay, cfg.MaxReconnectDelay),
		log:       log,
		connState: "disconnected",
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the reconnect-and-stream loop in a background goroutine.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(ctx)
}

// Stop cancels the background loop and waits for it to exit.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
	<-c.stoppedCh
}

func (c *Client) setState(s string) {
	c.mu.Lock()
	c.connState = s
	c.mu.Unlock()
}

// State reports the client's current connection state, for health checks.
func (c *Client) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connState
}

func (c *Client) run(ctx context.Context) {
	defer close(c.stoppedCh)
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.connectAndStream(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("ads stream error, will reconnect", slog.Any("error", err))
		}

		if ctx.Err() != nil {
			return
		}

		c.setState("reconnecting")
		metrics.DPSyncReconnectsTotal.Inc()
		if err := c.reconnect.WaitWithContext(ctx, c.log); err != nil {
			return
		}
	}
}

func (c *Client) connectAndStream(ctx context.Context) error {
	c.setState("connecting")

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, c.cfg.ServerAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return fmt.Errorf("dial control plane %s: %w", c.cfg.ServerAddress, err)
	}
	defer conn.Close()

	client := discoveryv3.NewAggregatedDiscoveryServiceClient(conn)
	stream, err := client.StreamAggregatedResources(ctx)
	if err != nil {
		return fmt.Errorf("open ads stream: %w", err)
	}

	c.setState("connected")
	c.reconnect.Reset()
	c.log.Info("connected to control plane", slog.String("server", c.cfg.ServerAddress))

	if err := c.sendRequest(stream, "", ""); err != nil {
		return fmt.Errorf("send initial discovery request: %w", err)
	}

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return fmt.Errorf("ads stream closed by control plane")
		}
		if err != nil {
			return fmt.Errorf("ads stream recv: %w", err)
		}

		if len(resp.GetResources()) != 1 {
			c.log.Warn("discarding discovery response with unexpected resource count",
				slog.Int("count", len(resp.GetResources())))
			if err := c.sendRequest(stream, c.currentVersion(), resp.GetNonce()); err != nil {
				return err
			}
			continue
		}

		snap, err := snapshot.Decode(resp.GetResources()[0])
		if err != nil {
			c.log.Error("failed to decode snapshot, nacking", slog.Any("error", err))
			if err := c.sendRequest(stream, c.currentVersion(), resp.GetNonce()); err != nil {
				return err
			}
			continue
		}

		runtime, err := materialize(ctx, snap, c.loader)
		if err != nil {
			c.log.Error("failed to materialize snapshot, nacking", slog.Any("error", err))
			if err := c.sendRequest(stream, c.currentVersion(), resp.GetNonce()); err != nil {
				return err
			}
			continue
		}
		c.store.Swap(runtime)
		c.setVersion(resp.GetVersionInfo())

		c.log.Info("applied snapshot",
			slog.Uint64("version", snap.Version),
			slog.Int("route_count", len(snap.Routes)))

		if err := c.sendRequest(stream, resp.GetVersionInfo(), resp.GetNonce()); err != nil {
			return fmt.Errorf("send ack: %w", err)
		}
	}
}

func (c *Client) currentVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Client) setVersion(v string) {
	c.mu.Lock()
	c.version = v
	c.mu.Unlock()
}

func (c *Client) sendRequest(stream discoveryv3.AggregatedDiscoveryService_StreamAggregatedResourcesClient, versionInfo, nonce string) error {
	return stream.Send(&discoveryv3.DiscoveryRequest{
		TypeUrl:       snapshot.TypeURL,
		VersionInfo:   versionInfo,
		ResponseNonce: nonce,
		Node: &corev3.Node{
			Id:      c.cfg.NodeID,
			Cluster: c.cfg.Cluster,
		},
	})
}
