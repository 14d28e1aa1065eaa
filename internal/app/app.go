package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/coffeeshop/internal/auth"
	"github.com/utafrali/coffeeshop/internal/config"
	"github.com/utafrali/coffeeshop/internal/event"
	handler "github.com/utafrali/coffeeshop/internal/handler/http"
	"github.com/utafrali/coffeeshop/internal/repository"
	"github.com/utafrali/coffeeshop/internal/repository/memory"
	mongorepo "github.com/utafrali/coffeeshop/internal/repository/mongo"
	"github.com/utafrali/coffeeshop/internal/repository/postgres"
	redisrepo "github.com/utafrali/coffeeshop/internal/repository/redis"
	"github.com/utafrali/coffeeshop/internal/service"
	"github.com/utafrali/coffeeshop/migrations"
	"github.com/utafrali/coffeeshop/pkg/database"
	"github.com/utafrali/coffeeshop/pkg/health"
	"github.com/utafrali/coffeeshop/pkg/httputil"
	pkgkafka "github.com/utafrali/coffeeshop/pkg/kafka"
	"github.com/utafrali/coffeeshop/pkg/middleware"
	"github.com/utafrali/coffeeshop/pkg/tracing"
)

const serviceName = "order"

// closer releases one dependency during shutdown.
type closer struct {
	name string
	fn   func(context.Context) error
}

// App wires together all dependencies and runs the order service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	limiter        *middleware.RateLimiter
	closers        []closer
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Service metrics live in their own registry. Package-level metrics (kafka
	// producer, circuit breaker, Go runtime) stay on the default one.
	registry := prometheus.NewRegistry()

	healthHandler := health.NewHandler()

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}
	httputil.SetExposeInternalErrors(cfg.IsDevelopment())

	repo, catalog, err := a.openStorage(ctx, registry, healthHandler)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	keys, err := a.openIdempotency(ctx, healthHandler)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	var publisher service.EventPublisher = event.Nop{}
	if cfg.KafkaEnabled {
		kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.closers = append(a.closers, closer{"kafka producer", func(context.Context) error { return kafkaProducer.Close() }})
		healthHandler.RegisterNonCritical("kafka", kafkaProducer.Ping)
		publisher = event.NewProducer(kafkaProducer, cfg.OrderNumbering(), logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("kafka disabled, order events will not be published")
	}

	orderService := service.NewOrderService(repo, catalog, publisher, service.Options{
		PaymentMethods: cfg.PaymentMethods,
		Discount:       cfg.Discount(),
		ShippingFee:    cfg.ShippingFee,
		Idempotency:    keys,
		IdempotencyTTL: cfg.IdempotencyTTL(),
		Metrics:        service.NewMetrics(registry),
	}, logger)

	a.limiter = middleware.NewRateLimiter(cfg.OrderRateLimitRPS, cfg.OrderRateLimitBurst, logger)

	router := handler.NewRouter(orderService, handler.RouterConfig{
		ServiceName:        serviceName,
		OrderNumbering:     cfg.OrderNumbering(),
		Tokens:             auth.NewTokens(cfg.JWTSecret, 0),
		Health:             healthHandler,
		HTTPMetrics:        middleware.NewHTTPMetrics(serviceName, registry),
		Gatherer:           prometheus.Gatherers{registry, prometheus.DefaultGatherer},
		CreateLimiter:      a.limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PprofCIDRs:         cfg.PprofAllowedCIDRs,
	}, logger)

	logger.Info("health checks registered", slog.Any("checks", healthHandler.Names()))

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStorage connects the configured order store and product catalog.
func (a *App) openStorage(ctx context.Context, reg prometheus.Registerer, hh *health.Handler) (repository.OrderRepository, repository.ProductCatalog, error) {
	cfg, logger := a.cfg, a.logger

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, closer{"postgres", func(context.Context) error { pool.Close(); return nil }})
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(reg, pool, serviceName); err != nil {
			return nil, nil, fmt.Errorf("register pool metrics: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
		hh.RegisterCritical("postgres", pool.Ping)
		return postgres.NewOrderRepository(pool), postgres.NewProductCatalog(pool), nil

	case config.StorageMongo:
		client, err := database.NewMongoClient(ctx, cfg.Mongo(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongo: %w", err)
		}
		a.closers = append(a.closers, closer{"mongo", client.Disconnect})
		db := client.Database(cfg.MongoDatabase)
		repo := mongorepo.NewOrderRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		logger.Info("connected to MongoDB", slog.String("database", cfg.MongoDatabase))
		hh.RegisterCritical("mongo", func(ctx context.Context) error { return client.Ping(ctx, nil) })
		return repo, mongorepo.NewProductCatalog(db), nil

	default:
		store := memory.NewStore()
		if cfg.SeedMenu {
			SeedMenu(store)
		}
		logger.Warn("using in-memory storage, orders are lost on restart")
		return store, store, nil
	}
}

// openIdempotency returns nil when Idempotency-Key handling is disabled.
func (a *App) openIdempotency(ctx context.Context, hh *health.Handler) (repository.IdempotencyStore, error) {
	switch a.cfg.IdempotencyBackend {
	case config.IdempotencyRedis:
		client, err := database.NewRedisClient(ctx, a.cfg.Redis(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, closer{"redis", func(context.Context) error { return client.Close() }})
		hh.RegisterNonCritical("redis", func(ctx context.Context) error { return pingRedis(ctx, client) })
		a.logger.Info("connected to Redis", slog.String("addr", a.cfg.RedisAddr))
		return redisrepo.NewIdempotencyStore(client), nil
	case config.IdempotencyMemory:
		return memory.NewIdempotencyStore(), nil
	default:
		return nil, nil
	}
}

func pingRedis(ctx context.Context, client *goredis.Client) error {
	return client.Ping(ctx).Err()
}

// Handler returns the HTTP handler served by the app.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go a.limiter.Run(limiterCtx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.closeAll()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// HTTP server first so in-flight requests drain, then the tracer so their
// spans are flushed, then storage and messaging clients.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.closeAllContext(ctx); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.closeAllContext(ctx)
}

// closeAllContext releases dependencies in reverse order of opening.
func (a *App) closeAllContext(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Error(c.name+" close error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
