package middleware

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/PaulBabatuyi/feedchat/internal/auth"
	"github.com/PaulBabatuyi/feedchat/internal/metrics"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LimiterStore keeps one token bucket per caller and drops buckets that
// have been idle for a while.
type LimiterStore struct {
	mu        sync.Mutex
	every     rate.Limit
	burst     int
	buckets   map[string]*bucket
	sweep     time.Duration
	idleAfter time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore allows limitPerMinute events per caller with the given
// burst, sweeping idle buckets every sweep interval.
func NewLimiterStore(limitPerMinute int, burst int, sweep time.Duration) *LimiterStore {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	s := &LimiterStore{
		every:     rate.Every(time.Minute / time.Duration(limitPerMinute)),
		burst:     burst,
		buckets:   map[string]*bucket{},
		sweep:     sweep,
		idleAfter: 10 * time.Minute,
		stopCh:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *LimiterStore) sweepLoop() {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.evictIdle(now.Add(-s.idleAfter))
		case <-s.stopCh:
			return
		}
	}
}

func (s *LimiterStore) evictIdle(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}

// Stop ends the sweeper. Safe to call more than once.
func (s *LimiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Allow spends one token from key's bucket.
func (s *LimiterStore) Allow(key string) bool {
	now := time.Now()

	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.every, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// rateKey picks who a request is charged to: the signed-in email when the
// auth interceptor already ran, else the remote host. The port is dropped
// so reconnecting does not buy a fresh bucket.
func rateKey(ctx context.Context) string {
	if c, ok := auth.ClaimsFromContext(ctx); ok && c.Email != "" {
		return "email:" + c.Email
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		host, _, err := net.SplitHostPort(p.Addr.String())
		if err != nil {
			host = p.Addr.String()
		}
		return "addr:" + host
	}
	return "unknown"
}

func (s *LimiterStore) check(ctx context.Context, method string) error {
	if s.Allow(rateKey(ctx)) {
		return nil
	}
	metrics.RateLimitHits.WithLabelValues(method).Inc()
	return status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
}

// RateLimitUnaryInterceptor limits the listed methods. Chain it after the
// auth interceptor so authenticated calls are keyed by sender.
func RateLimitUnaryInterceptor(store *LimiterStore, limitedMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if limitedMethods[info.FullMethod] {
			if err := store.check(ctx, info.FullMethod); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

// RateLimitStreamInterceptor charges one token per stream opened on the
// listed methods.
func RateLimitStreamInterceptor(store *LimiterStore, limitedMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if limitedMethods[info.FullMethod] {
			if err := store.check(ss.Context(), info.FullMethod); err != nil {
				return err
			}
		}
		return handler(srv, ss)
	}
}
