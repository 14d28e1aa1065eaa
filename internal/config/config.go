package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/pricing"
	pkgconfig "github.com/utafrali/coffeeshop/pkg/config"
	"github.com/utafrali/coffeeshop/pkg/database"
	"github.com/utafrali/coffeeshop/pkg/tracing"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
	StorageMemory   = "memory"
)

// Idempotency backends.
const (
	IdempotencyRedis  = "redis"
	IdempotencyMemory = "memory"
	IdempotencyNone   = "none"
)

// Config holds all configuration for the order service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"ORDER_HTTP_PORT" envDefault:"8004"`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres" validate:"oneof=postgres mongo memory"`
	// SeedMenu loads the sample coffee menu when STORAGE_DRIVER=memory.
	SeedMenu bool `env:"SEED_MENU" envDefault:"true"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"coffeeshop"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"coffeeshop_secret"`
	PostgresDB   string `env:"ORDER_DB_NAME" envDefault:"order_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// MongoDB
	MongoURI         string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase    string `env:"MONGO_DATABASE" envDefault:"coffeeshop"`
	MongoMaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE" envDefault:"50"`

	// Idempotency-Key handling
	IdempotencyBackend  string `env:"IDEMPOTENCY_BACKEND" envDefault:"redis" validate:"oneof=redis memory none"`
	IdempotencyTTLHours int    `env:"IDEMPOTENCY_TTL_HOURS" envDefault:"24"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Auth
	JWTSecret string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`

	// Pricing and checkout rules
	DiscountProductName        string   `env:"DISCOUNT_PRODUCT_NAME" envDefault:"Filter Pack"`
	DiscountQualifyingQuantity int      `env:"DISCOUNT_QUALIFYING_QUANTITY" envDefault:"2"`
	DiscountPerGroup           int64    `env:"DISCOUNT_PER_GROUP" envDefault:"10"`
	ShippingFee                int64    `env:"SHIPPING_FEE" envDefault:"0"`
	PaymentMethods             []string `env:"PAYMENT_METHODS" envDefault:"cash-taipei,cash-sanchong" envSeparator:","`
	OrderNumberPrefix          string   `env:"ORDER_NUMBER_PREFIX" envDefault:"CF"`
	// IANA zone whose calendar date goes into order numbers, e.g. Asia/Taipei.
	OrderNumberTimezone        string   `env:"ORDER_NUMBER_TIMEZONE" envDefault:"UTC"`

	// Rate limiting of order submission, per client IP
	OrderRateLimitRPS   float64 `env:"ORDER_RATE_LIMIT_RPS" envDefault:"2"`
	OrderRateLimitBurst int     `env:"ORDER_RATE_LIMIT_BURST" envDefault:"5"`

	// Browser origins allowed to call the API
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	orderNumberLocation *time.Location
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load order config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.StorageDriver == StoragePostgres && (c.PostgresHost == "" || c.PostgresUser == "") {
		return fmt.Errorf("POSTGRES_HOST and POSTGRES_USER are required for the postgres driver")
	}
	if c.StorageDriver == StorageMongo && (c.MongoURI == "" || c.MongoDatabase == "") {
		return fmt.Errorf("MONGO_URI and MONGO_DATABASE are required for the mongo driver")
	}
	if c.IdempotencyBackend == IdempotencyRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis idempotency backend")
	}
	if c.IdempotencyTTLHours < 1 {
		return fmt.Errorf("IDEMPOTENCY_TTL_HOURS must be positive, got %d", c.IdempotencyTTLHours)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.Environment != "development" && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DiscountQualifyingQuantity < 0 || c.DiscountPerGroup < 0 {
		return fmt.Errorf("discount rule must not be negative: qualifying quantity %d, discount %d",
			c.DiscountQualifyingQuantity, c.DiscountPerGroup)
	}
	if c.ShippingFee < 0 {
		return fmt.Errorf("SHIPPING_FEE must not be negative, got %d", c.ShippingFee)
	}
	if len(c.PaymentMethods) == 0 {
		return fmt.Errorf("PAYMENT_METHODS is required")
	}
	for _, m := range c.PaymentMethods {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("PAYMENT_METHODS contains an empty entry")
		}
	}
	if !isTwoLetters(c.OrderNumberPrefix) {
		return fmt.Errorf("ORDER_NUMBER_PREFIX must be two letters, got %q", c.OrderNumberPrefix)
	}
	loc, err := time.LoadLocation(c.OrderNumberTimezone)
	if err != nil {
		return fmt.Errorf("ORDER_NUMBER_TIMEZONE: %w", err)
	}
	c.orderNumberLocation = loc
	if c.OrderRateLimitRPS <= 0 || c.OrderRateLimitBurst < 1 {
		return fmt.Errorf("order rate limit must be positive: rps %v, burst %d", c.OrderRateLimitRPS, c.OrderRateLimitBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

func isTwoLetters(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Postgres returns the pool configuration for the postgres driver.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Mongo returns the client configuration for the mongo driver.
func (c *Config) Mongo() database.MongoConfig {
	return database.MongoConfig{
		URI:            c.MongoURI,
		Database:       c.MongoDatabase,
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    c.MongoMaxPoolSize,
	}
}

// Redis returns the client configuration for the idempotency store.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB}
}

// Discount returns the configured multi-buy rule.
func (c *Config) Discount() pricing.DiscountRule {
	return pricing.DiscountRule{
		ProductName:        c.DiscountProductName,
		QualifyingQuantity: c.DiscountQualifyingQuantity,
		DiscountPerGroup:   c.DiscountPerGroup,
	}
}

// OrderNumbering returns how display order numbers are derived.
func (c *Config) OrderNumbering() domain.OrderNumbering {
	return domain.OrderNumbering{Prefix: c.OrderNumberPrefix, Location: c.orderNumberLocation}
}

// IdempotencyTTL returns how long an Idempotency-Key is remembered.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

// Tracing returns the OpenTelemetry settings for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	return tracing.Config{
		Enabled:        c.OTELEnabled,
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		Insecure:       true,
		SampleRate:     c.OTELSampleRate,
	}
}
