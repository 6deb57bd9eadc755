package main

import (
	"context"
	"database/sql"
	"errors"

	grocerv1 "grocer/api/grocerv1"
	"grocer/cmd/server/config"
	grpcadapter "grocer/internal/adapters/grpc"
	inventorydb "grocer/internal/db/inventory"
	ordersdb "grocer/internal/db/orders"
	"grocer/internal/events"
	"grocer/internal/idempotency"
	"grocer/internal/inventory"
	"grocer/internal/kv"
	"grocer/internal/logging"
	"grocer/internal/observability"
	"grocer/internal/orders"
	"grocer/internal/realtime"
	"grocer/internal/saga"

	"go.uber.org/zap"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// settings is everything buildApp reads from env.
type settings struct {
	Database  config.DatabaseConfig
	Kafka     config.KafkaConfig
	Inventory config.InventoryClientConfig
	Payment   config.PaymentClientConfig
	Redis     config.RedisConfig
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)
	if s.Redis, err = config.LoadRedis(); err != nil {
		return s, err
	}
	s.Database = config.LoadDatabase()
	if s.Kafka, err = config.LoadKafka(); err != nil {
		return s, err
	}
	if s.Inventory, err = config.LoadInventoryClient(); err != nil {
		return s, err
	}
	if s.Payment, err = config.LoadPaymentClient(); err != nil {
		return s, err
	}
	return s, nil
}

// app is the wired process: services behind the gRPC adapters plus the
// shared metrics and realtime hub.
type app struct {
	inventory *inventory.Service
	orders    *orders.OrderService
	metrics   *observability.Metrics
	hub       *realtime.Hub
	closers   []func() error
	logger    *zap.Logger
}

// Close releases every resource the builder opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func buildApp(ctx context.Context, s settings, store kv.Store, logger *zap.Logger) (*app, error) {
	logger = logging.OrNop(logger)
	a := &app{
		metrics: observability.NewMetrics(),
		hub:     realtime.NewHub(logger),
		logger:  logger,
	}

	var db *sql.DB
	if s.Database.URL != "" {
		var err error
		db, err = openDB("pgx", s.Database.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
	}

	sinks := []events.Sink{events.NewHubSink(a.hub)}
	if len(s.Kafka.Brokers) > 0 {
		writer := events.NewKafkaWriter(s.Kafka.Brokers, s.Kafka.BatchTimeout, logger)
		sink := events.NewKafkaSink(writer, logger, s.Kafka.QueueSize)
		a.closers = append(a.closers, sink.Close)
		sinks = append(sinks, sink)
	}
	publisher := events.NewPublisher(logger, sinks...)

	var items inventory.ItemStore = inventory.NewMemoryItemStore()
	var orderStore orders.Store = orders.NewMemoryStore()
	var payments orders.PaymentClient = orders.NewStubPaymentClient()
	if db != nil {
		var err error
		if items, err = inventorydb.NewPostgresItemStoreWithSchema(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		if orderStore, err = ordersdb.NewPostgresOrderStoreWithSchema(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		if payments, err = ordersdb.NewPostgresPaymentClientWithSchema(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.inventory = inventory.NewService(items, store, publisher, logger,
		inventory.WithCacheTTL(s.Redis.ItemCacheTTL),
		inventory.WithMarkerTTL(s.Redis.MarkerTTL),
	)

	var stock orders.InventoryClient = a.inventory
	if s.Inventory.Addr != "" {
		conn, err := grpcpkg.NewClient(s.Inventory.Addr, grpcpkg.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		stock = grpcadapter.NewInventoryClient(conn, s.Inventory.Timeout)
		logger.Info("order saga uses remote inventory", zap.String("addr", s.Inventory.Addr))
	}

	orch := saga.New(store,
		saga.WithLogger(logger),
		saga.WithTTL(s.Redis.SagaTTL),
		saga.WithObserver(saga.MultiObserver{
			saga.NewLogObserver(logger),
			a.metrics.SagaObserver(),
			publisher,
		}),
	)
	orderSaga := orders.NewOrderSaga(orch,
		s.Inventory.Reliability.WrapInventory(stock),
		s.Payment.Reliability.WrapPayment(payments),
	)
	a.orders = orders.NewOrderService(orderStore, idempotency.NewGuard(store, s.Redis.IdempotencyTTL), orderSaga, logger)
	return a, nil
}

// registerServices exposes the inventory and order services on server.
func (a *app) registerServices(server *grpcpkg.Server) error {
	if a.inventory == nil || a.orders == nil {
		return errors.New("app is not built")
	}
	grocerv1.RegisterInventoryServer(server, grpcadapter.NewInventoryServer(a.inventory))
	grocerv1.RegisterOrdersServer(server, grpcadapter.NewOrderServer(a.orders))
	return nil
}
