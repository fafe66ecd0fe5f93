// Package server exposes a session controller over HTTP: health and
// readiness probes, read-only snapshots, session control, a websocket
// snapshot stream and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/logging"
	"github.com/utkarsh5026/heatload/metrics"
	"github.com/utkarsh5026/heatload/session"
)

// Engine is the controller surface the server drives.
type Engine interface {
	Start(cfg config.Config) error
	Pause() error
	Resume() error
	Stop() error
	UpdateIntensity(v float64) error
	Snapshot() session.Snapshot
	Health() session.Health
	Ready() session.Readiness
}

// Option configures a Server.
type Option func(*Server)

// WithPresets serves and resolves presets from catalog.
func WithPresets(catalog *config.Catalog) Option {
	return func(s *Server) {
		if catalog != nil {
			s.presets = catalog
		}
	}
}

// WithLogs serves recent log records from ring on /logs.
func WithLogs(ring *logging.Ring) Option {
	return func(s *Server) {
		s.logs = ring
	}
}

// WithRegistry serves reg on /metrics instead of a registry built from the
// engine.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithStreamInterval sets how often /stream pushes a snapshot.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

// WithControlRate limits session control requests to perSecond with the
// given burst. Non-positive values disable the limit.
func WithControlRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		} else {
			s.limiter = nil
		}
	}
}

// WithAllowedOrigins enables CORS for browser dashboards.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is the HTTP surface.
type Server struct {
	engine         Engine
	presets        *config.Catalog
	logs           *logging.Ring
	registry       *prometheus.Registry
	streamInterval time.Duration
	limiter        *rate.Limiter
	origins        []string
	logger         *slog.Logger

	router *gin.Engine
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the router for engine.
func New(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:         engine,
		presets:        config.NewCatalog(config.BuiltinPresets()),
		streamInterval: 500 * time.Millisecond,
		limiter:        rate.NewLimiter(rate.Limit(10), 5),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = metrics.NewRegistry(engine)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))
	if len(s.origins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: s.origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/snapshot", s.handleSnapshot)
	router.GET("/logs", s.handleLogs)
	router.GET("/presets", s.handlePresets)
	router.GET("/stream", s.handleStream)
	router.GET("/metrics", gin.WrapH(metrics.Handler(s.registry)))

	control := router.Group("/session", rateLimit(s.limiter))
	{
		control.POST("/start", s.handleStart)
		control.POST("/pause", s.handlePause)
		control.POST("/resume", s.handleResume)
		control.POST("/stop", s.handleStop)
		control.POST("/intensity", s.handleIntensity)
	}
	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
	}

	s.cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends every open stream.
func (s *Server) Close() { s.cancel() }
