// Package server wires the chi router, middleware and handlers into an
// HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
	"github.com/3leaps/gojobgraph/internal/server/handlers"
	"github.com/3leaps/gojobgraph/internal/server/middleware"
	"github.com/3leaps/gojobgraph/pkg/workbench"
)

// Server is the gojobgraph HTTP API.
type Server struct {
	host   string
	port   int
	logger *zap.Logger

	wb        *workbench.Workbench
	version   handlers.VersionInfo
	metrics   bool
	pprof     bool
	rateLimit float64
	rateBurst int

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	router     chi.Router
	httpServer *http.Server
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkbench serves the API over wb instead of an empty workbench.
func WithWorkbench(wb *workbench.Workbench) Option {
	return func(s *Server) { s.wb = wb }
}

func WithVersion(info handlers.VersionInfo) Option {
	return func(s *Server) { s.version = info }
}

// WithMetrics mounts the Prometheus handler at /metrics.
func WithMetrics(on bool) Option {
	return func(s *Server) { s.metrics = on }
}

// WithPprof mounts the runtime profiler at /debug.
func WithPprof(on bool) Option {
	return func(s *Server) { s.pprof = on }
}

func WithRateLimit(limit float64, burst int) Option {
	return func(s *Server) { s.rateLimit, s.rateBurst = limit, burst }
}

func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) { s.readTimeout, s.writeTimeout, s.idleTimeout = read, write, idle }
}

// New builds a server listening on host:port once started.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		logger:       zap.NewNop(),
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.wb == nil {
		s.wb = workbench.New(workbench.WithLogger(s.logger))
	}
	middleware.SetLogger(s.logger)
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Metrics)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NotFound("route not found: "+req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.New(http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path)))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler(s.version))
	if s.metrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}
	if s.pprof {
		r.Mount("/debug", chimw.Profiler())
	}

	api := handlers.NewAPI(s.wb, s.logger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.rateLimit, s.rateBurst))
		api.Routes(r)
	})
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Port() int { return s.port }

func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Workbench returns the workbench the API operates on.
func (s *Server) Workbench() *workbench.Workbench { return s.wb }

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.Addr()))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains connections until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
