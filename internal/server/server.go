// Package server provides the HTTP API for Revelation.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/revelation/internal/config"
	"github.com/hyperjump/revelation/internal/feedback"
	"github.com/hyperjump/revelation/internal/metadata"
	"github.com/hyperjump/revelation/internal/metrics"
	"github.com/hyperjump/revelation/internal/ranking"
	"github.com/hyperjump/revelation/internal/service"
	"go.uber.org/zap"
)

// maxUploadBytes bounds multipart bodies.
const maxUploadBytes = 32 << 20

// Engine is the ranking service the handlers call.
type Engine interface {
	Predict(ctx context.Context, image []byte, k int) ([]ranking.Result, error)
	RankVector(ctx context.Context, query []float32, k int) ([]ranking.Result, error)
	Ready() bool
	ModelLoaded() bool
	Status() service.Status
}

// Server is the HTTP server for the Revelation API.
type Server struct {
	engine   Engine
	catalog  *metadata.Store
	feedback *feedback.Service
	metrics  *metrics.Metrics
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithCatalog enables sibling decoration and the /gears endpoints.
func WithCatalog(c *metadata.Store) Option {
	return func(s *Server) { s.catalog = c }
}

// WithFeedback enables the /feedback endpoints.
func WithFeedback(f *feedback.Service) Option {
	return func(s *Server) { s.feedback = f }
}

// WithMetrics exposes /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine Engine, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = metadata.NewStore(nil)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Post("/predict", s.handlePredict)

	r.Route("/feedback", func(r chi.Router) {
		r.Post("/", s.handleFeedbackCreate)
		r.Get("/", s.handleFeedbackList)
		r.Get("/{id}", s.handleFeedbackGet)
	})

	r.Route("/gears", func(r chi.Router) {
		r.Get("/search", s.handleGearSearch)
		r.Get("/autocomplete", s.handleGearAutocomplete)
		r.Get("/{label}/siblings", s.handleGearSiblings)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/rank", s.handleRank)
		r.Get("/status", s.handleStatus)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// logRequests logs each request through zap.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Address()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
