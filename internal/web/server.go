// Package web provides the HTTP API of the constituent records service.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/JonMunkholm/constituents/internal/auth"
	"github.com/JonMunkholm/constituents/internal/config"
	"github.com/JonMunkholm/constituents/internal/core"
	webmw "github.com/JonMunkholm/constituents/internal/web/middleware"
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Store    *core.Store
	Pipeline *core.Pipeline
	Limiter  *core.BatchLimiter
	Users    *auth.Users
	Tokens   *auth.Tokens
}

// Server is the HTTP server for the constituent API.
type Server struct {
	cfg      *config.Config
	store    *core.Store
	pipeline *core.Pipeline
	limiter  *core.BatchLimiter
	users    *auth.Users
	tokens   *auth.Tokens

	router       *chi.Mux
	rateLimiters []*webmw.RateLimiter
	server       *http.Server
}

// NewServer creates a Server with middleware and routes installed.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		pipeline: deps.Pipeline,
		limiter:  deps.Limiter,
		users:    deps.Users,
		tokens:   deps.Tokens,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	// Built up front so Shutdown never races with Start.
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5, "application/json", "text/csv"))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute).Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(s.newRateLimiter(s.cfg.Rate.AuthLimit).Middleware)
			}
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})
		r.Get("/logout", s.handleLogout)
		r.Get("/check-auth", s.handleCheckAuth)

		r.Group(func(r chi.Router) {
			r.Use(webmw.RequireSession(s.tokens))

			r.Get("/profile", s.handleProfile)

			r.Route("/constituents", func(r chi.Router) {
				r.Get("/", s.handleListConstituents)
				r.Post("/", s.handleAddConstituent)
				r.Get("/download-csv", s.handleDownloadCSV)
				r.Post("/batch-upload", s.handleBatchUpload)
			})
		})
	})
}

func (s *Server) newRateLimiter(perMinute int) *webmw.RateLimiter {
	rl := webmw.NewRateLimiter(perMinute)
	s.rateLimiters = append(s.rateLimiters, rl)
	return rl
}

// Handler returns the root handler with tracing applied.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "constituents",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background workers. Calling
// it before Start makes a later Start return http.ErrServerClosed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Close()
	return s.server.Shutdown(ctx)
}

// Close releases background resources without a running listener.
func (s *Server) Close() {
	for _, rl := range s.rateLimiters {
		rl.Close()
	}
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
