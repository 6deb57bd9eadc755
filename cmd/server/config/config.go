package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"grocer/internal/orders"
)

// RedisConfig holds Redis connection settings and the TTLs of the records
// kept there.
type RedisConfig struct {
	URL                string
	DialTimeout        *time.Duration
	ReadTimeout        *time.Duration
	WriteTimeout       *time.Duration
	PoolSize           *int
	MinIdleConns       *int
	MaxRetries         *int
	HealthcheckTimeout time.Duration
	EnableOTel         bool
	TLSConfig          *tls.Config

	SagaTTL        time.Duration
	IdempotencyTTL time.Duration
	ItemCacheTTL   time.Duration
	MarkerTTL      time.Duration
}

// DatabaseConfig points at Postgres. An empty URL keeps records in memory.
type DatabaseConfig struct {
	URL string
}

// GRPCConfig holds the listen address and ingress rate limiting settings.
type GRPCConfig struct {
	Addr              string
	RateLimitInterval time.Duration
	RateLimitBurst    int
}

// ObservabilityConfig holds the HTTP address for metrics and the
// WebSocket feed.
type ObservabilityConfig struct {
	Addr string
}

// LoggingConfig selects the log level and preset.
type LoggingConfig struct {
	Level string
	Env   string
}

// KafkaConfig lists brokers for event publishing. No brokers disables Kafka.
// QueueSize bounds how many events may wait for delivery.
type KafkaConfig struct {
	Brokers      []string
	BatchTimeout time.Duration
	QueueSize    int
}

// InventoryClientConfig selects how the order saga reaches inventory. An
// empty Addr uses the in-process inventory service.
type InventoryClientConfig struct {
	Addr        string
	Timeout     time.Duration
	Reliability orders.ReliabilityConfig
}

// PaymentClientConfig tunes the reliability wrapper around payments.
type PaymentClientConfig struct {
	Reliability orders.ReliabilityConfig
}

// LoadRedis reads Redis config from env.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{}

	url, err := requiredString("REDIS_URL")
	if err != nil {
		return cfg, err
	}
	cfg.URL = url

	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if cfg.MinIdleConns, err = optionalInt("REDIS_MIN_IDLE_CONNS"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, err
	}

	if cfg.HealthcheckTimeout, err = requiredDuration("REDIS_HEALTHCHECK_TIMEOUT"); err != nil {
		return cfg, err
	}

	if cfg.SagaTTL, err = durationOr("SAGA_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.IdempotencyTTL, err = durationOr("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.ItemCacheTTL, err = durationOr("ITEM_CACHE_TTL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.MarkerTTL, err = durationOr("RESERVATION_MARKER_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}

	if cfg.EnableOTel, err = optionalBool("REDIS_OTEL"); err != nil {
		return cfg, err
	}

	if cfg.TLSConfig, err = loadRedisTLSFromEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadDatabase reads the optional Postgres DSN from env.
func LoadDatabase() DatabaseConfig {
	return DatabaseConfig{URL: strings.TrimSpace(os.Getenv("DATABASE_URL"))}
}

// LoadGRPC reads the gRPC listen address and rate limit settings from env.
func LoadGRPC() (GRPCConfig, error) {
	interval, err := requiredDuration("GRPC_RATE_LIMIT_INTERVAL")
	if err != nil {
		return GRPCConfig{}, err
	}
	burst, err := requiredInt("GRPC_RATE_LIMIT_BURST")
	if err != nil {
		return GRPCConfig{}, err
	}
	return GRPCConfig{
		Addr:              stringOr("GRPC_ADDR", ":50051"),
		RateLimitInterval: interval,
		RateLimitBurst:    burst,
	}, nil
}

// LoadObservability reads metrics HTTP server address from env.
func LoadObservability() (ObservabilityConfig, error) {
	addr, err := requiredString("OBS_ADDR")
	if err != nil {
		return ObservabilityConfig{}, err
	}
	return ObservabilityConfig{Addr: addr}, nil
}

// LoadLogging reads LOG_LEVEL and APP_ENV.
func LoadLogging() LoggingConfig {
	return LoggingConfig{
		Level: stringOr("LOG_LEVEL", "info"),
		Env:   strings.TrimSpace(os.Getenv("APP_ENV")),
	}
}

// LoadKafka reads the comma separated KAFKA_BROKERS list.
func LoadKafka() (KafkaConfig, error) {
	cfg := KafkaConfig{}
	for _, broker := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.Brokers = append(cfg.Brokers, broker)
		}
	}
	var err error
	if cfg.BatchTimeout, err = durationOr("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.QueueSize, err = intOr("KAFKA_QUEUE_SIZE", 1024); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadInventoryClient reads INVENTORY_ADDR, INVENTORY_TIMEOUT and the
// INVENTORY_CLIENT_* reliability settings.
func LoadInventoryClient() (InventoryClientConfig, error) {
	cfg := InventoryClientConfig{Addr: strings.TrimSpace(os.Getenv("INVENTORY_ADDR"))}
	var err error
	if cfg.Timeout, err = durationOr("INVENTORY_TIMEOUT", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Reliability, err = orders.LoadReliabilityConfig("INVENTORY_CLIENT"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadPaymentClient reads the PAYMENT_CLIENT_* reliability settings.
func LoadPaymentClient() (PaymentClientConfig, error) {
	rel, err := orders.LoadReliabilityConfig("PAYMENT_CLIENT")
	if err != nil {
		return PaymentClientConfig{}, err
	}
	return PaymentClientConfig{Reliability: rel}, nil
}

func loadRedisTLSFromEnv() (*tls.Config, error) {
	caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE"))
	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME"))
	insecureStr := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY"))

	if caFile == "" && certFile == "" && keyFile == "" && serverName == "" && insecureStr == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if insecureStr != "" {
		insecure, err := strconv.ParseBool(insecureStr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE_SKIP_VERIFY: %w", err)
		}
		tlsConfig.InsecureSkipVerify = insecure
	}

	if caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("REDIS_TLS_CA_FILE contains no valid certificates")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis TLS keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalBool(name string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}

func requiredInt(name string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func requiredDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func stringOr(name, def string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return def
}

func intOr(name string, def int) (int, error) {
	if strings.TrimSpace(os.Getenv(name)) == "" {
		return def, nil
	}
	return requiredInt(name)
}

func durationOr(name string, def time.Duration) (time.Duration, error) {
	val, err := optionalDuration(name)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return def, nil
	}
	return *val, nil
}
