package main

import (
	"context"
	"testing"

	"grocer/internal/observability"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type stubLimiter struct {
	calls int
	err   error
}

func (s *stubLimiter) Wait(ctx context.Context) error {
	s.calls++
	return s.err
}

type stubServerStream struct {
	ctx       context.Context
	recvCalls int
	recvErr   error
}

func (s *stubServerStream) Context() context.Context { return s.ctx }
func (s *stubServerStream) RecvMsg(m any) error {
	s.recvCalls++
	return s.recvErr
}
func (s *stubServerStream) SendMsg(m any) error { return nil }
func (s *stubServerStream) SetHeader(md metadata.MD) error {
	return nil
}
func (s *stubServerStream) SendHeader(md metadata.MD) error {
	return nil
}
func (s *stubServerStream) SetTrailer(md metadata.MD) {}

func TestRateLimitUnaryInterceptor_CallsLimiter(t *testing.T) {
	limiter := &stubLimiter{}
	interceptor := rateLimitUnaryInterceptor(limiter, nil, nil)

	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected limiter to be called once, got %d", limiter.calls)
	}
}

func TestRateLimitedServerStream_RecvMsgCallsLimiter(t *testing.T) {
	limiter := &stubLimiter{}
	stream := &stubServerStream{ctx: context.Background()}
	wrapped := &rateLimitedServerStream{
		ServerStream: stream,
		limiter:      limiter,
	}

	if err := wrapped.RecvMsg(&struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected limiter to be called once, got %d", limiter.calls)
	}
	if stream.recvCalls != 1 {
		t.Fatalf("expected recv to be called once, got %d", stream.recvCalls)
	}
}

func TestRateLimitUnaryInterceptor_RecordsMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	interceptor := rateLimitUnaryInterceptor(nil, metrics, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/grocer.order.v1.Orders/Create"}

	_, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.FailedPrecondition, "insufficient stock")
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected handler error, got %v", err)
	}
	snap := metrics.Snapshot()
	m, ok := snap.Methods[info.FullMethod]
	if !ok || m.Count != 1 || m.Errors != 1 {
		t.Fatalf("unexpected method metrics: %+v", snap.Methods)
	}
}

func TestRateLimitUnaryInterceptor_LimiterErrorSkipsHandler(t *testing.T) {
	limiter := &stubLimiter{err: context.Canceled}
	interceptor := rateLimitUnaryInterceptor(limiter, nil, nil)
	called := false

	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		called = true
		return nil, nil
	})
	if err != context.Canceled {
		t.Fatalf("expected limiter error, got %v", err)
	}
	if called {
		t.Fatalf("handler must not run when the limiter fails")
	}
}

func TestShouldTrackMethod(t *testing.T) {
	if shouldTrackMethod("/grpc.reflection.v1.ServerReflection/ServerReflectionInfo") {
		t.Fatalf("reflection calls should not be tracked")
	}
	if !shouldTrackMethod("/grocer.inventory.v1.Inventory/Reserve") {
		t.Fatalf("inventory calls should be tracked")
	}
}

func TestRateLimitStreamInterceptor_WrapsStream(t *testing.T) {
	limiter := &stubLimiter{}
	interceptor := rateLimitStreamInterceptor(limiter, nil, nil)
	stream := &stubServerStream{ctx: context.Background()}

	err := interceptor(nil, stream, &grpc.StreamServerInfo{FullMethod: "/grocer.order.v1.Orders/Watch"}, func(srv any, ss grpc.ServerStream) error {
		return ss.RecvMsg(&struct{}{})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter.calls != 1 || stream.recvCalls != 1 {
		t.Fatalf("expected one limited recv, got limiter=%d recv=%d", limiter.calls, stream.recvCalls)
	}
}
