// Package keepalive serves the liveness endpoint hosting platforms poll to
// keep the process awake, plus health, metrics and recent relay events.
package keepalive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"psi09relay/internal/bus"
	"psi09relay/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Config configures the keep-alive server.
type Config struct {
	Host    string
	Port    int
	Banner  string
	Metrics bool
	Events  *bus.EventBus // optional; /events is not served without it
	Logger  *slog.Logger
}

// Server is the keep-alive HTTP server.
type Server struct {
	addr   string
	banner string
	events *bus.EventBus
	logger *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		banner: cfg.Banner,
		events: cfg.Events,
		logger: cfg.Logger.With("component", "keepalive"),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleBanner)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if cfg.Metrics {
		s.mux.Handle("GET /metrics", metrics.Collector.Handler())
	}
	if cfg.Events != nil {
		s.mux.HandleFunc("GET /events", s.handleEvents)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the routes for testing and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("keep-alive server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("keep-alive server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("keep-alive server: %w", err)
	}
}

func (s *Server) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.banner)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

// handleEvents returns retained relay events as JSON. Query parameters:
// type (default all) and since, a duration such as 15m (default 1h).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")
	if eventType == "" {
		eventType = "*"
	}
	window := time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid since duration", http.StatusBadRequest)
			return
		}
		window = d
	}

	events := s.events.Replay(eventType, time.Now().Add(-window))
	if events == nil {
		events = []bus.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"count":  len(events),
		"events": events,
	}); err != nil {
		s.logger.Debug("encode events response", "err", err)
	}
}
