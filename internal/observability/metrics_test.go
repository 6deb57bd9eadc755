package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"grocer/internal/saga"
)

func TestMetricsTracksCalls(t *testing.T) {
	metrics := NewMetrics()
	span := metrics.Start("svc.Method")
	time.Sleep(1 * time.Millisecond)
	span.End(nil)

	span = metrics.Start("svc.Method")
	span.End(errors.New("fail"))

	snap := metrics.Snapshot()
	stats := snap.Methods["svc.Method"]
	if stats.Count != 2 {
		t.Fatalf("expected 2 calls, got %d", stats.Count)
	}
	if stats.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", stats.Errors)
	}
	if stats.InFlight != 0 {
		t.Fatalf("expected 0 inflight, got %d", stats.InFlight)
	}
	if snap.TotalRequests != 2 || snap.TotalErrors != 1 {
		t.Fatalf("unexpected totals: %+v", snap)
	}
}

func TestMetricsTracksRateLimitWait(t *testing.T) {
	metrics := NewMetrics()
	metrics.AddRateLimitWait(50 * time.Millisecond)
	metrics.AddRateLimitWait(25 * time.Millisecond)
	metrics.AddRateLimitWait(0)

	snap := metrics.Snapshot()
	if snap.RateLimitWaits != 2 {
		t.Fatalf("expected 2 waits, got %d", snap.RateLimitWaits)
	}
	if snap.RateLimitWaitMs != 75 {
		t.Fatalf("expected 75ms, got %d", snap.RateLimitWaitMs)
	}
}

func TestMetricsMarkShutdown(t *testing.T) {
	metrics := NewMetrics()
	metrics.MarkShutdown(5)
	snap := metrics.Snapshot()
	if snap.Lifecycle == nil {
		t.Fatalf("expected lifecycle snapshot")
	}
	if snap.Lifecycle.InFlightAtShutdown != 5 {
		t.Fatalf("expected inflight 5, got %d", snap.Lifecycle.InFlightAtShutdown)
	}
	if snap.Lifecycle.ShutdownAt.IsZero() {
		t.Fatalf("expected shutdown timestamp")
	}
}

func TestHandlerReturnsJSON(t *testing.T) {
	metrics := NewMetrics()
	span := metrics.Start("/test")
	span.End(errors.New("fail"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	Handler(metrics).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if snap.TotalErrors != 1 {
		t.Fatalf("expected total errors 1, got %d", snap.TotalErrors)
	}
	if len(snap.Methods) == 0 {
		t.Fatalf("expected methods in snapshot")
	}
}

func TestMetricsNilSafePaths(t *testing.T) {
	var m *Metrics
	span := m.Start("ignored") // nil-safe
	span.End(nil)              // should not panic

	m.MarkShutdown(10) // nil-safe
}

func TestMetricsCountsSagaOutcomes(t *testing.T) {
	metrics := NewMetrics()
	obs := metrics.SagaObserver()
	ctx := context.Background()

	obs.Observe(ctx, saga.Notification{Kind: saga.KindSagaStarted, Saga: "ORDER_SAGA"})
	obs.Observe(ctx, saga.Notification{Kind: saga.KindSagaCompleted, Saga: "ORDER_SAGA", Duration: 40 * time.Millisecond})
	obs.Observe(ctx, saga.Notification{Kind: saga.KindSagaStarted, Saga: "ORDER_SAGA"})
	obs.Observe(ctx, saga.Notification{Kind: saga.KindStepCompensated, Saga: "ORDER_SAGA"})
	obs.Observe(ctx, saga.Notification{Kind: saga.KindCompensationFailed, Saga: "ORDER_SAGA"})
	obs.Observe(ctx, saga.Notification{Kind: saga.KindSagaFailed, Saga: "ORDER_SAGA"})

	stats, ok := metrics.Snapshot().Sagas["ORDER_SAGA"]
	if !ok {
		t.Fatalf("expected saga stats")
	}
	want := SagaSnapshot{Started: 2, Completed: 1, Failed: 1, Compensations: 1, CompensationFailures: 1, AvgDurationMs: 40}
	if stats != want {
		t.Fatalf("unexpected saga stats: %+v", stats)
	}
}

func TestHandlerFiltersBySaga(t *testing.T) {
	metrics := NewMetrics()
	metrics.SagaObserver().Observe(context.Background(), saga.Notification{Kind: saga.KindSagaStarted, Saga: "ORDER_SAGA"})
	h := Handler(metrics)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics?saga=ORDER_SAGA", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats SagaSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if stats.Started != 1 {
		t.Fatalf("expected one started saga, got %+v", stats)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics?saga=OTHER", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
