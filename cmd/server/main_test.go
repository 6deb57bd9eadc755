package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"grocer/cmd/server/config"
	"grocer/internal/inventory"
	"grocer/internal/kv"
	"grocer/internal/orders"

	grpcpkg "google.golang.org/grpc"
)

func memorySettings() settings {
	return settings{
		Redis: config.RedisConfig{
			SagaTTL:        time.Hour,
			IdempotencyTTL: time.Hour,
			ItemCacheTTL:   time.Minute,
			MarkerTTL:      time.Hour,
		},
		Kafka:     config.KafkaConfig{BatchTimeout: 10 * time.Millisecond},
		Inventory: config.InventoryClientConfig{Timeout: time.Second, Reliability: orders.DefaultReliabilityConfig},
		Payment:   config.PaymentClientConfig{Reliability: orders.DefaultReliabilityConfig},
	}
}

func TestBuildApp_InMemoryOrderFlow(t *testing.T) {
	ctx := context.Background()
	a, err := buildApp(ctx, memorySettings(), kv.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(a.Close)

	if _, err := a.inventory.CreateItem(ctx, inventory.Item{ID: "rice", Name: "Rice", Quantity: 10}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	order, err := a.orders.CreateOrder(ctx, orders.CreateOrderRequest{
		UserID:      "user-1",
		Items:       []orders.ItemRequest{{GroceryItemID: "rice", Quantity: 4, Price: 2}},
		TotalAmount: 8,
	}, "boot-1")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != orders.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", order.Status)
	}

	avail, err := a.inventory.CheckAvailability(ctx, "rice")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if avail.Quantity != 6 {
		t.Fatalf("expected 6 left, got %d", avail.Quantity)
	}

	snap := a.metrics.Snapshot()
	if got := snap.Sagas["ORDER_SAGA"].Completed; got != 1 {
		t.Fatalf("expected one completed saga in metrics, got %+v", snap.Sagas)
	}
}

func TestBuildApp_RemoteInventoryDialsLazily(t *testing.T) {
	s := memorySettings()
	s.Inventory.Addr = "127.0.0.1:1"

	a, err := buildApp(context.Background(), s, kv.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(a.closers) != 1 {
		t.Fatalf("expected the client connection to be tracked, got %d closers", len(a.closers))
	}
	a.Close()
	if a.closers != nil {
		t.Fatalf("expected closers to be cleared")
	}
}

func TestBuildApp_DatabaseOpenError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(driver, dsn string) (*sql.DB, error) {
		if driver != "pgx" {
			t.Fatalf("unexpected driver %s", driver)
		}
		return nil, errors.New("no route to database")
	}

	s := memorySettings()
	s.Database.URL = "postgres://localhost/grocer"
	if _, err := buildApp(context.Background(), s, kv.NewMemoryStore(), nil); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestRegisterServices(t *testing.T) {
	a, err := buildApp(context.Background(), memorySettings(), kv.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(a.Close)

	server := grpcpkg.NewServer()
	if err := a.registerServices(server); err != nil {
		t.Fatalf("register: %v", err)
	}
	info := server.GetServiceInfo()
	for _, name := range []string{"grocer.inventory.v1.Inventory", "grocer.order.v1.Orders"} {
		if _, ok := info[name]; !ok {
			t.Fatalf("expected %s to be registered, got %v", name, info)
		}
	}

	if err := (&app{}).registerServices(server); err == nil {
		t.Fatalf("expected error for unbuilt app")
	}
}

func TestObservabilityServer_ServesMetrics(t *testing.T) {
	a, err := buildApp(context.Background(), memorySettings(), kv.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(a.Close)

	srv := newObservabilityServer(":0", a.metrics, a.hub)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code == http.StatusOK {
		t.Fatalf("expected plain GET on /ws to be rejected")
	}
}

func TestLoadSettingsRequiresRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if _, err := loadSettings(); err == nil {
		t.Fatalf("expected error when REDIS_URL is empty")
	}
}
