package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/me/jobtracker/internal/logging"
	"github.com/me/jobtracker/internal/tracker"
)

// maxCommandBytes bounds a command request body.
const maxCommandBytes = 1 << 20

// Config holds HTTP transport settings.
type Config struct {
	Token     string  // required bearer token; empty disables the check
	RateLimit float64 // command requests per second; 0 disables limiting
	RateBurst int
}

// Dispatcher executes decoded client commands. *tracker.Tracker implements it.
type Dispatcher interface {
	HandleRequest(body []byte) (any, error)
	Stats() tracker.Stats
}

// Server is the tracker's HTTP front end.
type Server struct {
	router     chi.Router
	logger     *slog.Logger
	config     Config
	startTime  time.Time
	dispatcher Dispatcher
	limiter    *rate.Limiter
	metrics    http.Handler
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithMetricsHandler replaces the default Prometheus handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a new Server with all routes registered.
func New(cfg Config, d Dispatcher, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logging.OrDiscard(logger).With("component", "server"),
		config:     cfg,
		startTime:  time.Now(),
		dispatcher: d,
		metrics:    promhttp.Handler(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/", s.handleDiscovery)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics)

	// Command endpoint
	r.Group(func(r chi.Router) {
		r.Use(tokenAuthMiddleware(s.config.Token, s.logger))
		r.Use(rateLimitMiddleware(s.limiter))
		r.Post("/", s.handleCommand)
	})
}
