// Package ops serves health and Prometheus metrics endpoints while the
// downloader runs in watch mode.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Status is reported by /healthz
type Status struct {
	Healthy   bool   `json:"healthy"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	Active    string `json:"active,omitempty"` // request file being processed
	LastError string `json:"last_error,omitempty"`
}

// StatusFunc returns the current status
type StatusFunc func() Status

// Server is the ops HTTP server
type Server struct {
	addr   string
	status StatusFunc
	logger *logrus.Entry
}

// NewServer creates a new ops server listening on addr
func NewServer(addr string, status StatusFunc, logger *logrus.Logger) *Server {
	return &Server{
		addr:   addr,
		status: status,
		logger: logger.WithField("component", "ops"),
	}
}

// Handler returns the router with all ops routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.Limit(
		120,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		}),
	))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := Status{Healthy: true}
	if s.status != nil {
		st = s.status()
	}

	code := http.StatusOK
	if !st.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.WithError(err).Debug("Failed to write health response")
	}
}

// Run serves until ctx is canceled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.addr).Info("Ops server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server shutdown: %w", err)
		}
		return nil
	}
}
