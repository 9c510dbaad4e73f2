package middleware

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/PaulBabatuyi/feedchat/internal/auth"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestLimiterStore_AllowAndCleanup(t *testing.T) {
	// allow 5 events immediately then the 6th should be rejected
	s := NewLimiterStore(5, 5, 50*time.Millisecond)
	defer s.Stop()

	key := "test@example.com"
	for i := 0; i < 5; i++ {
		if !s.Allow(key) {
			t.Fatalf("expected allow at iteration %d", i)
		}
	}
	if s.Allow(key) {
		t.Fatalf("expected limiter to block after burst consumed")
	}

	// idle entries are evicted, which resets the bucket
	s.evictIdle(time.Now().Add(time.Second))
	s.mu.Lock()
	_, ok := s.buckets[key]
	s.mu.Unlock()
	if ok {
		t.Fatalf("expected idle entry to be evicted")
	}
	if !s.Allow(key) {
		t.Fatalf("expected fresh bucket after eviction")
	}
}

func TestRateLimitUnaryInterceptor_KeysBySender(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Minute)
	defer s.Stop()

	const method = "/chat.v1.ChatService/Append"
	icpt := RateLimitUnaryInterceptor(s, map[string]bool{method: true})
	info := &grpc.UnaryServerInfo{FullMethod: method}
	ok := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }

	alice := auth.WithClaims(context.Background(), &auth.Claims{Email: "alice@example.com"})
	bob := auth.WithClaims(context.Background(), &auth.Claims{Email: "bob@example.com"})

	if _, err := icpt(alice, nil, info, ok); err != nil {
		t.Fatalf("first call rejected: %v", err)
	}
	_, err := icpt(alice, nil, info, ok)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
	// another sender has its own bucket
	if _, err := icpt(bob, nil, info, ok); err != nil {
		t.Fatalf("bob rejected: %v", err)
	}
}

func TestRateLimitUnaryInterceptor_SkipsUnlistedAndUsesPeer(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Minute)
	defer s.Stop()

	icpt := RateLimitUnaryInterceptor(s, map[string]bool{"/limited": true})
	ok := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }

	for i := 0; i < 3; i++ {
		if _, err := icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/free"}, ok); err != nil {
			t.Fatalf("unlisted method limited: %v", err)
		}
	}

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4000}})
	if _, err := icpt(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/limited"}, ok); err != nil {
		t.Fatalf("first peer call rejected: %v", err)
	}
	// same host, new connection
	ctx = peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4001}})
	if _, err := icpt(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/limited"}, ok); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected second peer call limited, got %v", err)
	}
}

type ctxStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s ctxStream) Context() context.Context { return s.ctx }

func TestRateLimitStreamInterceptor(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Minute)
	defer s.Stop()

	const method = "/chat.v1.ChatService/Subscribe"
	icpt := RateLimitStreamInterceptor(s, map[string]bool{method: true})
	info := &grpc.StreamServerInfo{FullMethod: method, IsServerStream: true}
	calls := 0
	handler := func(srv interface{}, ss grpc.ServerStream) error { calls++; return nil }

	ss := ctxStream{ctx: auth.WithClaims(context.Background(), &auth.Claims{Email: "carol@example.com"})}
	if err := icpt(nil, ss, info, handler); err != nil {
		t.Fatalf("first stream rejected: %v", err)
	}
	if err := icpt(nil, ss, info, handler); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}
