// Package ops runs the read-only diagnostics HTTP server for the batch job:
// /health and /metrics, bound to localhost by default. It is an operator
// surface, not a product API.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/PhotisTheo/LotLogic-sub001/internal/metrics"
)

// ServerConfig holds the diagnostics server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig binds to localhost only.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:9090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server is the diagnostics HTTP server.
type Server struct {
	server  *http.Server
	started time.Time
	version string
}

// NewServer wires /health and /metrics onto a mux router.
func NewServer(cfg ServerConfig, reg *metrics.Registry, version string) *Server {
	s := &Server{started: time.Now(), version: version}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start serves in the foreground until Shutdown or failure.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("diagnostics server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("diagnostics server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}
