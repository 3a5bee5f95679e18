// Package server exposes the token registry over HTTP with a websocket feed
// that announces each confirmed creation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Mohsinsiddi/ctfactory/internal/config"
	"github.com/Mohsinsiddi/ctfactory/internal/flow"
	"github.com/Mohsinsiddi/ctfactory/internal/registry"
)

const (
	defaultWriteRate  = rate.Limit(2)
	defaultWriteBurst = 5
	shutdownTimeout   = 10 * time.Second
	healthTimeout     = 5 * time.Second
)

// Server serves the registry API.
type Server struct {
	reg     registry.Registry
	backend string
	counter *flow.RefreshCounter
	log     *zap.Logger
	prom    *prometheus.Registry
	hub     *hub
	stopHub context.CancelFunc
	engine  *gin.Engine
	limit   rate.Limit
	burst   int
	timeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithRefreshCounter shares a counter with other presentations. By default
// the server owns one.
func WithRefreshCounter(c *flow.RefreshCounter) Option {
	return func(s *Server) { s.counter = c }
}

// WithPrometheus sets the registry that request metrics are registered on
// and /metrics serves.
func WithPrometheus(reg *prometheus.Registry) Option {
	return func(s *Server) { s.prom = reg }
}

// WithWriteLimit sets the per-client rate for POST requests.
func WithWriteLimit(limit rate.Limit, burst int) Option {
	return func(s *Server) {
		s.limit = limit
		s.burst = burst
	}
}

// WithBackend names the backend reported by /healthz.
func WithBackend(name string) Option {
	return func(s *Server) { s.backend = name }
}

// WithCreateTimeout bounds a single POST /api/tokens.
func WithCreateTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New builds a Server over reg.
func New(reg registry.Registry, opts ...Option) *Server {
	s := &Server{
		reg:     reg,
		log:     zap.NewNop(),
		limit:   defaultWriteRate,
		burst:   defaultWriteBurst,
		timeout: config.TxConfirmTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.counter == nil {
		s.counter = flow.NewRefreshCounter()
	}
	if s.prom == nil {
		s.prom = prometheus.NewRegistry()
	}
	s.hub = newHub(s.log)
	hubCtx, stop := context.WithCancel(context.Background())
	s.stopHub = stop
	updates, unsubscribe := s.counter.Subscribe()
	go s.hub.run(hubCtx, updates, unsubscribe)
	s.engine = s.routes()
	return s
}

// Close stops the refresh feed and disconnects its clients.
func (s *Server) Close() {
	s.stopHub()
	s.hub.closeAll()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Counter returns the refresh counter bumped after each creation.
func (s *Server) Counter() *flow.RefreshCounter { return s.counter }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(accessLog(s.log))
	r.Use(newHTTPMetrics(s.prom).middleware())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.prom, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(newWriteLimiter(s.limit, s.burst).middleware())
	{
		api.GET("/tokens", s.listTokens)
		api.GET("/tokens/count", s.tokenCount)
		api.GET("/tokens/:index", s.getToken)
		api.POST("/tokens", s.createToken)
		api.GET("/refresh", s.refreshFeed)
	}
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	s.log.Info("api stopped")
	return nil
}
