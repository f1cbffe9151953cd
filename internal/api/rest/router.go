package rest

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dealscope/valuation-engine/internal/api/rest/handlers"
	customMiddleware "github.com/dealscope/valuation-engine/internal/api/rest/middleware"
	"github.com/dealscope/valuation-engine/pkg/auth"
	"github.com/dealscope/valuation-engine/pkg/config"
	"github.com/dealscope/valuation-engine/pkg/logger"
	"github.com/dealscope/valuation-engine/pkg/metrics"
)

// Router holds the HTTP router and dependencies
type Router struct {
	router     *chi.Mux
	logger     *logger.Logger
	handlers   *handlers.Handlers
	jwtManager *auth.JWTManager
	metrics    *metrics.Metrics
	cfg        *config.Config
}

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, log *logger.Logger, h *handlers.Handlers, jwtManager *auth.JWTManager, m *metrics.Metrics) *Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(customMiddleware.Metrics(m))

	allowedOrigins := []string{"http://localhost:3000"}
	if originsEnv := os.Getenv("ALLOWED_ORIGINS"); originsEnv != "" {
		allowedOrigins = strings.Split(originsEnv, ",")
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	return &Router{
		router:     r,
		logger:     log,
		handlers:   h,
		jwtManager: jwtManager,
		metrics:    m,
		cfg:        cfg,
	}
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes() {
	// Prometheus metrics endpoint (no auth required)
	r.router.Handle("/metrics", promhttp.Handler())

	// Health endpoints (no auth required)
	r.router.Get("/health", r.handlers.Health.Health)
	r.router.Get("/ready", r.handlers.Health.Ready)

	rateLimiter := customMiddleware.NewRateLimiter(
		r.cfg.Server.RateLimitRPS,
		r.cfg.Server.RateLimitBurst,
		r.logger,
	)

	r.router.Route("/api/v1", func(router chi.Router) {
		router.Use(customMiddleware.RateLimit(rateLimiter))

		// Read surface
		router.Route("/listings", func(router chi.Router) {
			router.Get("/", r.handlers.Listing.List)
			router.Get("/{id}", r.handlers.Listing.Get)
			router.Get("/{id}/breakdown", r.handlers.Listing.GetBreakdown)
			router.Get("/{id}/breakdowns", r.handlers.Listing.ListBreakdowns)
			router.Get("/{id}/overrides", r.handlers.Override.List)

			// Write operations require authentication
			router.Group(func(router chi.Router) {
				router.Use(customMiddleware.JWTAuth(r.jwtManager, r.logger))
				router.Post("/", r.handlers.Listing.Create)
				router.Put("/{id}/components", r.handlers.Listing.UpdateComponents)
				router.Post("/{id}/evaluate", r.handlers.Listing.Evaluate)
				router.Post("/{id}/recalculate", r.handlers.Listing.Recalculate)
				router.Put("/{id}/overrides", r.handlers.Override.Upsert)
				router.Delete("/{id}/overrides/{overrideID}", r.handlers.Override.Delete)
			})
		})

		router.Route("/rulesets", func(router chi.Router) {
			router.Get("/", r.handlers.Ruleset.List)
			router.Get("/{id}", r.handlers.Ruleset.Get)

			// Recalculation trigger needs a token but not the admin role
			router.Group(func(router chi.Router) {
				router.Use(customMiddleware.JWTAuth(r.jwtManager, r.logger))
				router.Post("/{id}/recalculate", r.handlers.Ruleset.Recalculate)
			})

			// Ruleset writes are admin-only
			router.Group(func(router chi.Router) {
				router.Use(customMiddleware.JWTAuth(r.jwtManager, r.logger))
				router.Use(customMiddleware.RequireRole("admin", r.logger))
				router.Post("/", r.handlers.Ruleset.Create)
				router.Put("/{id}", r.handlers.Ruleset.Update)
				router.Delete("/{id}", r.handlers.Ruleset.Delete)
			})
		})
	})
}

// Handler returns the configured http.Handler
func (r *Router) Handler() http.Handler {
	return r.router
}
