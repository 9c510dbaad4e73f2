// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	// RPC metrics
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedchat_rpc_requests_total",
			Help: "Total unary RPCs handled",
		},
		[]string{"method", "code"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedchat_rpc_request_duration_seconds",
			Help:    "Unary RPC duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method"},
	)

	// Business metrics
	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedchat_messages_appended_total",
			Help: "Total messages appended",
		},
	)

	SignIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedchat_sign_ins_total",
			Help: "Sign-in exchanges by outcome",
		},
		[]string{"outcome"}, // "ok" or "rejected"
	)

	ActiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedchat_active_subscribers",
			Help: "Live window subscriptions currently open",
		},
	)

	SnapshotsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedchat_snapshots_sent_total",
			Help: "Live window snapshots pushed to subscribers",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedchat_rate_limit_hits_total",
			Help: "Total rate limit rejections",
		},
		[]string{"method"},
	)

	// Infrastructure metrics
	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedchat_relay_events_total",
			Help: "Append notifications exchanged with other gateway replicas",
		},
		[]string{"direction"}, // "published" or "received"
	)
)

// UnaryInterceptor records count and latency of every unary RPC.
func UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		RPCRequestDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		RPCRequestsTotal.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}
