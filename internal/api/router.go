// Package api assembles the HTTP surface: the websocket endpoint, health,
// metrics, and the public room directory.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/api/middleware"
	"github.com/mindhaven/relay/internal/handlers"
	"github.com/mindhaven/relay/internal/registry"
	"github.com/mindhaven/relay/internal/session"
	"github.com/mindhaven/relay/internal/store"
)

// RouterConfig collects the router's collaborators.
type RouterConfig struct {
	Directory store.Directory
	Redis     *store.RedisStore // optional
	Limiter   store.RateLimiter
	Sessions  *session.Manager
	Registry  *registry.Registry

	// Socket is the websocket upgrade handler, mounted at /ws.
	Socket http.Handler

	Log zerolog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware first to capture all requests.
	r.Use(middleware.Metrics)

	// Security middleware (order matters).
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Log))
	r.Use(chimw.Recoverer)

	if cfg.Limiter != nil {
		limiter := middleware.NewRateLimiter(cfg.Limiter, cfg.Log)
		r.Use(limiter.Middleware)
	}

	// CORS: the widget embeds on consumer pages, so any origin may connect.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(cfg.Directory, cfg.Redis, cfg.Sessions, cfg.Registry)

	// Metrics endpoint for Prometheus scraping.
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/healthz", h.Health)
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{id}", h.GetRoom)
	r.Get("/stats", h.Stats)

	// The socket carries everything else: join/leave, messages, acks.
	r.Handle("/ws", cfg.Socket)

	return r
}
