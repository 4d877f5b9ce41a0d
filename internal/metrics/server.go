package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "telegrama/pkg/logx"
)

// Server manages the lifecycle of the optional /metrics listener.
type Server struct {
	mu      sync.Mutex
	log     logx.Logger
	handler http.Handler
	srv     *http.Server
	ln      net.Listener
	addr    string
}

// NewServer serves the collectors of g. A nil gatherer uses the default registry.
func NewServer(g prometheus.Gatherer, log logx.Logger) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Server{
		log:     log.With(logx.String("comp", "metrics")),
		handler: promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
	}
}

// Apply starts, moves or stops the listener so that it matches addr.
// An empty addr disables the endpoint.
func (s *Server) Apply(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr == "" {
		s.stopLocked(ctx)
		return nil
	}
	if s.srv != nil && s.addr == addr {
		return nil
	}
	s.stopLocked(ctx)
	return s.startLocked(addr)
}

func (s *Server) startLocked(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.handler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Warn("metrics listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	bound := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("metrics server error", logx.String("addr", bound), logx.Err(err))
		}
	}()
	s.log.Info("metrics enabled", logx.String("addr", bound))
	return nil
}

// Stop gracefully shuts down the listener.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln, addr := s.srv, s.ln, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""

	if ctx == nil {
		ctx = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("metrics shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	_ = ln.Close()
	s.log.Info("metrics disabled", logx.String("addr", addr))
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
