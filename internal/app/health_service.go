package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fedsync/internal/ledger"
)

const defaultHistoryLimit = 50

// HealthService provides HTTP health, metrics and control endpoints.
type HealthService struct {
	addr            string
	shutdownTimeout time.Duration
	reconciler      *ReconcileService
	ledger          *ledger.Ledger // nil when the ledger is disabled
	gatherer        prometheus.Gatherer
}

// NewHealthService creates a new HealthService.
func NewHealthService(addr string, shutdownTimeout time.Duration, reconciler *ReconcileService, l *ledger.Ledger, gatherer prometheus.Gatherer) *HealthService {
	return &HealthService{
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		reconciler:      reconciler,
		ledger:          l,
		gatherer:        gatherer,
	}
}

// Router returns the HTTP handler with all routes registered.
func (s *HealthService) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.Register(r)
	return r
}

// Register mounts the routes on r.
func (s *HealthService) Register(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.Get("/history", s.handleHistory)
	r.Post("/reconcile", s.handleReconcile)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *HealthService) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health check server: %w", err)
	}
	return nil
}

func (s *HealthService) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.reconciler.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HealthService) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reconciler.Status())
}

func (s *HealthService) handleReconcile(w http.ResponseWriter, r *http.Request) {
	s.reconciler.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *HealthService) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ledger is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.ledger.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read ledger"})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
