// Package metrics exposes the gateway's Prometheus instrumentation,
// grounded on gateway-controller/pkg/metrics's namespaced-vector idiom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gateway_core"

var (
	// SnapshotBuildTotal counts snapshot builds by outcome ("success",
	// "error").
	SnapshotBuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_build_total",
		Help:      "Total snapshot build attempts by outcome.",
	}, []string{"outcome"})

	// SnapshotVersion is the version of the most recently published
	// snapshot.
	SnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_version",
		Help:      "Version number of the most recently published snapshot.",
	})

	// PolicyPreloadTotal counts policy artifact preload attempts by
	// outcome ("success", "fetch_error", "sha_mismatch", "invalid_wasm").
	PolicyPreloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_preload_total",
		Help:      "Total policy artifact preload attempts by outcome.",
	}, []string{"outcome"})

	// PolicyEvaluationsTotal counts pre_upstream policy evaluations by
	// policy id and outcome ("ok", "rejected", "error").
	PolicyEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_evaluations_total",
		Help:      "Total pre_upstream policy evaluations by policy id and outcome.",
	}, []string{"policy_id", "outcome"})

	// PolicyEvaluationDurationSeconds observes per-binding evaluation
	// latency.
	PolicyEvaluationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "policy_evaluation_duration_seconds",
		Help:      "Latency of a single pre_upstream policy evaluation.",
	}, []string{"policy_id"})

	// RouteMatchTotal counts matcher outcomes ("matched", "no_route").
	RouteMatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "route_match_total",
		Help:      "Total route match attempts by outcome.",
	}, []string{"outcome"})

	// XDSStreamsActive tracks concurrently connected ADS subscribers.
	XDSStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "xds_streams_active",
		Help:      "Number of currently connected ADS subscribers.",
	})

	// DPSyncReconnectsTotal counts data-plane sync reconnect attempts.
	DPSyncReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dp_sync_reconnects_total",
		Help:      "Total number of data-plane ADS reconnect attempts.",
	})
)
