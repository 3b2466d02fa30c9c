// Package health exposes the minimal liveness/readiness endpoint
// outer orchestration probes once the kernel programs are attached.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/espegro/fact-agent/internal/logger"
)

// Server answers 200 on "/" and "/ready" once Ready has been called,
// 503 before that.
type Server struct {
	server *http.Server
	port   int
	ready  atomic.Bool
}

// NewServer creates a health server on the given port
func NewServer(port int) *Server {
	return &Server{port: port}
}

// Ready marks the agent as ready to serve probes with 200
func (s *Server) Ready() {
	s.ready.Store(true)
}

// Start starts the health HTTP server
func (s *Server) Start() error {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", handler)
	mux.HandleFunc("/ready", handler)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Health endpoint listening on :%d", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the health server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
