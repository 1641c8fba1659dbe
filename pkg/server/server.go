package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/repository"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/chat"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

// Server is the HTTP face of the tutoring pipeline: chat (JSON and SSE),
// session management, progress events, and health.
type Server struct {
	chat     *chat.UseCase
	repo     repository.Repository
	index    adapter.VectorIndex
	verifier adapter.TokenVerifier

	addr        string
	corsOrigins []string
	limit       rate.Limit
	burst       int
	allowAnon   bool

	router *chi.Mux
}

// NewInput contains the dependencies for the HTTP server
type NewInput struct {
	Chat     *chat.UseCase
	Repo     repository.Repository
	Index    adapter.VectorIndex
	Verifier adapter.TokenVerifier
}

// Option is a functional option for Server
type Option func(*Server)

// WithAddr sets the listen address
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithCORSOrigins sets the allowed CORS origins
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithRateLimit sets the per-client request rate and burst
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.limit = rate.Limit(perSecond)
		s.burst = burst
	}
}

// WithAnonymousChat controls whether chat endpoints accept requests
// without a bearer token. Session and progress endpoints always require
// one.
func WithAnonymousChat(allow bool) Option {
	return func(s *Server) {
		s.allowAnon = allow
	}
}

// New creates a new Server instance
func New(input NewInput, opts ...Option) *Server {
	s := &Server{
		chat:     input.Chat,
		repo:     input.Repo,
		index:    input.Index,
		verifier: input.Verifier,

		addr:        ":8080",
		corsOrigins: []string{"*"},
		limit:       rate.Limit(1),
		burst:       60,
		allowAnon:   true,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.buildRouter()
	return s
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware(s.corsOrigins))

	limiter := newRateLimiter(s.limit, s.burst)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(limiter.middleware)

		r.Group(func(r chi.Router) {
			r.Use(s.auth(s.allowAnon))
			r.Post("/query", s.handleQuery)
			r.Post("/query/stream", s.handleQueryStream)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth(false))
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleArchiveSession)
		})
	})

	r.Route("/api/progress", func(r chi.Router) {
		r.Use(limiter.middleware)
		r.Use(s.auth(false))
		r.Post("/", s.handlePutProgress)
		r.Get("/", s.handleGetProgress)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout stays 0: SSE responses outlive any fixed deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Default().Info("server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return goerr.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	logging.Default().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down gracefully")
	}
	return nil
}
