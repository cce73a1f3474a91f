package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/metrics"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services are the in-memory backend services behind the router
type Services struct {
	Users    service.UserService
	Products service.ProductService
	Carts    service.CartService
	Orders   service.OrderService
	// ProductRepo is exposed for seeding
	ProductRepo repository.ProductRepository
}

// NewServices wires fresh in-memory repositories into the services
func NewServices(cfg *config.Config) *Services {
	userRepo := repository.NewUserRepository()
	productRepo := repository.NewProductRepository()
	orderRepo := repository.NewOrderRepository()
	cartRepo := repository.NewCartRepository()

	return &Services{
		Users:       service.NewUserService(userRepo, cfg.JWT.Secret, time.Duration(cfg.JWT.Expiry)*time.Second),
		Products:    service.NewProductService(productRepo, orderRepo, userRepo),
		Carts:       service.NewCartService(cartRepo, productRepo, orderRepo),
		Orders:      service.NewOrderService(orderRepo),
		ProductRepo: productRepo,
	}
}

// Seed loads the default demo accounts and catalog
func (s *Services) Seed(ctx context.Context) error {
	return service.Seed(ctx, s.Users, s.ProductRepo, service.DefaultUsers, service.DefaultProducts(time.Now()))
}

// Options are the optional collaborators of the router
type Options struct {
	// Redis enables rate limiting when cfg.RateLimit.Enabled is set
	Redis *redis.Client
	// Metrics records per-route request metrics
	Metrics *metrics.Recorder
	// Gatherer is served on /metrics when set
	Gatherer prometheus.Gatherer
}

// NewRouter builds the REST API router
func NewRouter(cfg *config.Config, logger *zap.Logger, svc *Services, opts Options) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))
	router.Use(opts.Metrics.Middleware)
	if cfg.RateLimit.Enabled && opts.Redis != nil {
		router.Use(custommiddleware.RateLimitMiddleware(opts.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "storefront:ratelimit",
		}, logger))
	}

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminOnly := custommiddleware.RequireAdmin(logger)

	transport.NewUserHandler(svc.Users, logger).RegisterRoutes(router, authMiddleware)
	transport.NewProductHandler(svc.Products, logger).RegisterRoutes(router, authMiddleware, adminOnly)
	transport.NewCartHandler(svc.Carts, logger).RegisterRoutes(router, authMiddleware)
	transport.NewOrderHandler(svc.Orders, logger).RegisterRoutes(router, authMiddleware, adminOnly)

	return router
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	redis  *redis.Client
}

// NewServer creates the HTTP server for the development backend
func NewServer(cfg *config.Config, logger *zap.Logger, svc *Services, opts Options) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      NewRouter(cfg, logger, svc, opts),
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		redis:  opts.Redis,
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
