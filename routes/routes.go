package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/heycarlitos/llm-proxy/app"
	"github.com/heycarlitos/llm-proxy/handlers"
	"github.com/heycarlitos/llm-proxy/middleware"
	"github.com/heycarlitos/llm-proxy/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config
	proxyCORS := middleware.NewProxyCORS(cfg.CORS.AllowedOrigins)

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(deps.Logger))
	r.Use(chimw.Recoverer)

	// Every OPTIONS request is a preflight and never reaches a handler
	r.Use(proxyCORS.Preflight)

	health := handlers.NewHealthHandler(storePinger(deps), providerStatus(deps), handlers.StatusInfo{
		Environment: cfg.Environment,
		Backend:     cfg.RateLimit.Backend,
		Capacity:    cfg.RateLimit.Capacity,
		Window:      cfg.RateLimit.Window,
	}, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if cfg.Observability.MetricsEnabled && deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Chat proxy; all methods land on the handler so it can answer 405 itself
	if deps.RateLimiter != nil && deps.Proxy != nil {
		proxyHandler := handlers.NewProxyHandler(deps.RateLimiter, deps.Proxy, deps.Metrics, cfg.Server.MaxBodyBytes, deps.Logger)
		r.With(proxyCORS.Handler, middleware.CallerID).HandleFunc("/proxy", proxyHandler.HandleProxy)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))

		r.Get("/status", health.HandleStatus)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "The requested resource was not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}

// storePinger avoids handing a typed nil to the health handler
func storePinger(deps *app.Dependencies) handlers.StorePinger {
	if deps.RateLimiter == nil {
		return nil
	}
	return deps.RateLimiter
}

func providerStatus(deps *app.Dependencies) handlers.ProviderStatus {
	if deps.Proxy == nil {
		return nil
	}
	return deps.Proxy
}
