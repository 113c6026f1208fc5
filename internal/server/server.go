package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/runner"
)

// Greeting is the body of GET /.
const Greeting = "Welcome to the Python Code Runner"

// Options tunes the HTTP server.
type Options struct {
	// RateLimit is the sustained request rate per client IP for the
	// execution endpoints. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Server is the HTTP server for the code runner API.
type Server struct {
	svc    *runner.Service
	opts   Options
	conns  *ConnManager
	router chi.Router
	http   *http.Server
}

// New creates a new Server.
func New(svc *runner.Service, opts Options) *Server {
	s := &Server{
		svc:    svc,
		opts:   opts,
		conns:  NewConnManager(),
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHome)

	limited := newClientLimiter(s.opts.RateLimit, s.opts.Burst)

	// Routes kept for existing editor clients
	r.Group(func(r chi.Router) {
		r.Use(jsonContentType)
		r.Use(limited.middleware)
		r.Post("/run_code", s.handleRun)
		r.Post("/lint_code", s.handleLint)
		r.Post("/autocomplete", s.handleAutocomplete)
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(jsonContentType)

			r.Get("/status", s.handleStatus)

			// Run history
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Delete("/runs/{id}", s.handleDeleteRun)

			r.Group(func(r chi.Router) {
				r.Use(limited.middleware)
				r.Post("/run", s.handleRun)
				r.Post("/lint", s.handleLint)
				r.Post("/autocomplete", s.handleAutocomplete)
			})
		})

		// WebSocket (no JSON content-type)
		r.With(limited.middleware).Get("/ws", s.handleWebSocket)
	})
}

// Handler returns the router wrapped with request logging from ctx.
func (s *Server) Handler(ctx context.Context) http.Handler {
	return log.HTTP(ctx)(s.router)
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins listening on the given port. ctx carries the logger.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 30 * time.Second,
	}

	log.Printf(ctx, "pyrun server starting on http://localhost%s", addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf(ctx, "shutting down server")
	s.conns.CloseAll()

	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
