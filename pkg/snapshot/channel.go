package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/envoyproxy/go-control-plane/pkg/cache/types"
	cachev3 "github.com/envoyproxy/go-control-plane/pkg/cache/v3"

	"github.com/wso2/gateway-core/pkg/logger"
	"github.com/wso2/gateway-core/pkg/metrics"
	"github.com/wso2/gateway-core/pkg/model"
)

// Channel is the single-value multi-subscriber push channel (C5). The
// latest Snapshot is the channel state: a new subscriber immediately
// receives it, and every subsequent publish overwrites it for all
// subscribers. Publishers never block on slow subscribers — a behavior
// LinearCache gives for free, since SetResources always replaces the full
// resource set and each watch is served independently.
//
// Grounded on gateway-controller/pkg/policyxds.SnapshotManager, generalized
// from policy-chain resources to whole Snapshots.
type Channel struct {
	cache   *cachev3.LinearCache
	builder *Builder
	mu      sync.Mutex
	log     *slog.Logger
}

// NewChannel creates a push channel backed by a LinearCache keyed under the
// custom Snapshot type URL.
func NewChannel(builder *Builder, log *slog.Logger) *Channel {
	return &Channel{
		cache:   cachev3.NewLinearCache(TypeURL, cachev3.WithLogger(logger.XDSAdapter{Logger: log})),
		builder: builder,
		log:     log,
	}
}

// Cache exposes the underlying xDS cache for server wiring.
func (c *Channel) Cache() types.Cache { return c.cache }

// Publish builds a new Snapshot from current store state and overwrites the
// channel's single resource slot with it. Safe to call concurrently with
// itself (serialized by mu) and with any number of subscribers.
func (c *Channel) Publish(ctx context.Context) (*model.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.builder.Build(ctx)
	if err != nil {
		metrics.SnapshotBuildTotal.WithLabelValues("error").Inc()
		c.log.Error("snapshot build failed, previous snapshot remains published", slog.Any("error", err))
		return nil, err
	}

	resource, err := Encode(snap)
	if err != nil {
		metrics.SnapshotBuildTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	c.cache.SetResources(map[string]types.Resource{ResourceName: resource})

	metrics.SnapshotBuildTotal.WithLabelValues("success").Inc()
	metrics.SnapshotVersion.Set(float64(snap.Version))

	c.log.Info("snapshot published",
		slog.Uint64("version", snap.Version),
		slog.Int("route_count", len(snap.Routes)),
		slog.Int("policy_artifact_count", len(snap.PolicyArtifacts)))

	return snap, nil
}
