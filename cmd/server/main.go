package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grocerv1 "grocer/api/grocerv1"
	"grocer/cmd/server/config"
	"grocer/internal/kv"
	"grocer/internal/logging"
	"grocer/internal/observability"
	"grocer/internal/orders"
	"grocer/internal/realtime"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	logCfg := config.LoadLogging()
	logger, err := logging.New(logging.Config{Level: logCfg.Level, Env: logCfg.Env})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, logger, logCfg.Env); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, env string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	grpcCfg, err := config.LoadGRPC()
	if err != nil {
		return err
	}
	obsCfg, err := config.LoadObservability()
	if err != nil {
		return err
	}

	redisClient, err := newRedisClient(ctx, s.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}()

	a, err := buildApp(ctx, s, kv.NewRedisStore(redisClient), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	lis, err := net.Listen("tcp", grpcCfg.Addr)
	if err != nil {
		return err
	}

	limiter := orders.NewRateLimiter(grpcCfg.RateLimitInterval, grpcCfg.RateLimitBurst).OnWait(a.metrics.AddRateLimitWait)
	server := grpcpkg.NewServer(
		grpcpkg.UnaryInterceptor(rateLimitUnaryInterceptor(limiter, a.metrics, logger)),
		grpcpkg.StreamInterceptor(rateLimitStreamInterceptor(limiter, a.metrics, logger)),
	)
	if err := a.registerServices(server); err != nil {
		return err
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	setServing(healthServer, healthpb.HealthCheckResponse_SERVING)

	if env != "production" {
		reflection.Register(server)
		logger.Info("gRPC reflection enabled", zap.String("env", env))
	}

	obsSrv := newObservabilityServer(obsCfg.Addr, a.metrics, a.hub)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", grpcCfg.Addr))
		return server.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("observability server listening", zap.String("addr", obsCfg.Addr))
		if err := obsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		setServing(healthServer, healthpb.HealthCheckResponse_NOT_SERVING)
		server.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		snap := a.metrics.Snapshot()
		a.metrics.MarkShutdown(snap.InFlight)
		return obsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpcpkg.ErrServerStopped) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func setServing(h *health.Server, status healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus(grocerv1.Inventory_ServiceDesc.ServiceName, status)
	h.SetServingStatus(grocerv1.Orders_ServiceDesc.ServiceName, status)
	h.SetServingStatus("", status)
}

func newObservabilityServer(addr string, metrics *observability.Metrics, hub *realtime.Hub) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))
	mux.HandleFunc("/ws", hub.ServeWS)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
