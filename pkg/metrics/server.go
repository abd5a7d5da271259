package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultMetricsPort = 9090
	stopGracePeriod    = 5 * time.Second
)

// Server exposes the registry over HTTP.
//
// Routes:
//   - /metrics  Prometheus exposition (503 while metrics are disabled)
//   - /healthz  liveness probe, always 200
//   - /         plain-text pointer to /metrics
type Server struct {
	httpServer *http.Server
	port       int
	stopOnce   sync.Once
}

// ServerConfig configures the metrics HTTP server. A zero Port means 9090.
type ServerConfig struct {
	Port int
}

// NewServer builds the server without binding; Start listens.
func NewServer(cfg ServerConfig) *Server {
	port := cfg.Port
	if port <= 0 {
		port = defaultMetricsPort
	}

	return &Server{
		port: port,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newMux(port),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       time.Minute,
		},
	}
}

func newMux(port int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "hdftp gateway metrics\n\nscrape http://<host>:%d/metrics\n", port)
	})
	return mux
}

// exporter resolves the registry once, at construction.
func exporter() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		logger.Debug("Metrics disabled, /metrics answers 503")
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          promLogger{},
	})
}

// promLogger routes promhttp errors into the gateway log.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	logger.Warn("metrics exposition: %s", fmt.Sprint(v...))
}

// Start binds the port and serves until ctx is done. A bind failure is
// returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics server: listen on port %d: %w", s.port, err)
	}
	logger.Info("Metrics server listening on port %d", s.port)

	served := make(chan error, 1)
	go func() {
		served <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), stopGracePeriod)
		defer cancel()
		return s.Stop(stopCtx)
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Stop shuts the server down; only the first call has an effect.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if err = s.httpServer.Shutdown(ctx); err != nil {
			logger.Error("Metrics server shutdown: %v", err)
			err = fmt.Errorf("metrics server shutdown: %w", err)
			return
		}
		logger.Debug("Metrics server stopped")
	})
	return err
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
