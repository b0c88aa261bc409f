// Package server exposes Prometheus metrics and the last run's status over
// HTTP while the bot runs in interval mode.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the JSON body of /health.
type Status struct {
	Name       string    `json:"name"`
	Time       time.Time `json:"time"`
	LastResult string    `json:"last_result,omitempty"`
	LastRunAt  time.Time `json:"last_run_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

type StatusFunc func() Status

type Server struct {
	name     string
	addr     string
	registry *prometheus.Registry
	status   StatusFunc
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

func New(name, addr string, registry *prometheus.Registry, status StatusFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{name: name, addr: addr, registry: registry, status: status, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start binds the listener synchronously so address errors surface here, then
// serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status server %s: listen on %s: %w", s.name, s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server stopped", "server", s.name, "error", err)
		}
	}()

	s.logger.Info("Status server listening", "server", s.name, "addr", ln.Addr().String())
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := Status{Name: s.name}
	if s.status != nil {
		st = s.status()
	}
	st.Time = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")
	if st.LastResult == "failed" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}
