package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocloud.dev/server"
	"gocloud.dev/server/health"
	"gocloud.dev/server/requestlog"
)

// Server runs the API behind a gocloud server, which contributes the
// /healthz/liveness and /healthz/readiness endpoints and request logging.
type Server struct {
	Addr     string
	Handler  http.Handler
	Health   []health.Checker
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	srv *server.Server
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", s.Handler)
	s.srv = server.New(mux, &server.Options{
		HealthChecks:  s.Health,
		RequestLogger: &requestLogger{logger: s.logger()},
		Driver:        server.NewDefaultDriver(),
	})
	s.logger().Info("http server listening", "addr", s.Addr)
	err := s.srv.ListenAndServe(s.Addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// requestLogger feeds gocloud's per-request entries into slog.
type requestLogger struct {
	logger *slog.Logger
}

func (l *requestLogger) Log(e *requestlog.Entry) {
	l.logger.Info("http request",
		"method", e.RequestMethod,
		"url", e.RequestURL,
		"status", e.Status,
		"latency", e.Latency,
		"bytes", e.ResponseBodySize,
		"remote", e.RemoteIP,
	)
}

var _ requestlog.Logger = (*requestLogger)(nil)

// HealthCheck is a flip-switch readiness checker. The serve command marks it
// healthy once every dependency is wired, so load balancers hold traffic off
// a booting instance.
type HealthCheck struct {
	healthy bool
	mu      sync.RWMutex
}

func (c *HealthCheck) SetHealthy(healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = healthy
}

func (c *HealthCheck) CheckHealth() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.healthy {
		return errors.New("not ready")
	}
	return nil
}

var _ health.Checker = (*HealthCheck)(nil)
