package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"avaneesh/datalink-go/pkg/internal/logger"
)

// Server serves a private Prometheus registry over HTTP
type Server struct {
	listen      string
	metricsPath string

	registry   *prometheus.Registry
	httpServer *http.Server
	listener   net.Listener
	logger     logger.Logger

	mu sync.Mutex
}

// NewServer creates a metrics server. The registry starts with the Go
// runtime and process collectors.
func NewServer(listen, metricsPath string, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetDefault()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		listen:      listen,
		metricsPath: metricsPath,
		registry:    registry,
		logger:      log,
	}
}

// Register adds a collector to the server's registry
func (s *Server) Register(c prometheus.Collector) error {
	return s.registry.Register(c)
}

// Registry returns the server's registry
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return fmt.Errorf("metrics server already started")
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics: server error: %v", err)
		}
	}()
	s.logger.Info("Metrics: serving %s on %s", s.metricsPath, ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the server, waiting for active requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
