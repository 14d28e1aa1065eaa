package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/service"
	"github.com/utafrali/coffeeshop/pkg/health"
	"github.com/utafrali/coffeeshop/pkg/middleware"
)

// RouterConfig carries everything NewRouter mounts besides the service.
type RouterConfig struct {
	ServiceName        string
	OrderNumbering     domain.OrderNumbering
	Tokens             middleware.TokenValidator
	Health             *health.Handler
	HTTPMetrics        *middleware.HTTPMetrics
	Gatherer           prometheus.Gatherer
	CreateLimiter      *middleware.RateLimiter
	CORSAllowedOrigins []string
	PprofCIDRs         []string
}

// NewRouter creates a chi router with all order service routes registered.
func NewRouter(orderService *service.OrderService, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "order"
	}

	r := chi.NewRouter()
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.LivenessHandler())
		r.Get("/health/ready", cfg.Health.ReadinessHandler())
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	// Order API endpoints
	orderHandler := NewOrderHandler(orderService, cfg.OrderNumbering, logger)

	r.Route("/api/orders", func(r chi.Router) {
		if len(cfg.CORSAllowedOrigins) > 0 {
			r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins)))
		}
		r.Use(middleware.Auth(cfg.Tokens))
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.Group(func(r chi.Router) {
			if cfg.CreateLimiter != nil {
				r.Use(cfg.CreateLimiter.Middleware)
			}
			r.Post("/", orderHandler.CreateOrder)
		})
		r.Get("/my-orders", orderHandler.ListMyOrders)
		r.Get("/{id}", orderHandler.GetOrder)
		r.Post("/{id}/cancel", orderHandler.CancelOrder)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Get("/", orderHandler.ListOrders)
			r.Put("/{id}/status", orderHandler.UpdateOrderStatus)
			r.Delete("/{id}", orderHandler.DeleteOrder)
		})
	})

	return r
}
