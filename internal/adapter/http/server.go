// Package http exposes the engine's operational surface: health, readiness,
// metrics, read-only state queries, and the actuator endpoints operators use
// to deploy, recall, and acknowledge.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/cloudburst-engine/internal/alert"
	"github.com/couchcryptid/cloudburst-engine/internal/deployment"
	"github.com/couchcryptid/cloudburst-engine/internal/domain"
	"github.com/couchcryptid/cloudburst-engine/internal/engine"
)

// Engine is the slice of the monitoring core the HTTP layer needs.
type Engine interface {
	CheckReadiness(ctx context.Context) error
	Deploy(ctx context.Context, sectorID string) (*domain.AerialUnit, deployment.Decision, error)
	Recall(ctx context.Context, unitID string) (*domain.AerialUnit, error)
	AcknowledgeAlert(ctx context.Context, alertID, userID string) (domain.Alert, error)
	RefreshPartition(ctx context.Context) (int, error)
	Sectors() []domain.Sector
	Sector(id string) (domain.Sector, bool)
	Alerts() []domain.Alert
	Units() []domain.AerialUnit
	PendingEvents() []domain.PropagationEvent
}

// Server exposes the engine over HTTP.
type Server struct {
	httpServer *http.Server
	engine     Engine
	logger     *slog.Logger
}

// NewServer wires all routes against the given engine.
func NewServer(addr string, eng Engine, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine: eng,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/sectors", s.handleSectors)
	mux.HandleFunc("GET /api/sectors/{sectorId}", s.handleSector)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/units", s.handleUnits)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("POST /api/deploy/{sectorId}", s.handleDeploy)
	mux.HandleFunc("POST /api/recall/{unitId}", s.handleRecall)
	mux.HandleFunc("POST /api/alerts/{alertId}/ack", s.handleAcknowledge)
	mux.HandleFunc("POST /api/partition/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.engine.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSectors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Sectors())
}

func (s *Server) handleSector(w http.ResponseWriter, r *http.Request) {
	sector, ok := s.engine.Sector(r.PathValue("sectorId"))
	if !ok {
		writeError(w, http.StatusNotFound, "sector not found")
		return
	}
	writeJSON(w, http.StatusOK, sector)
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Alerts())
}

func (s *Server) handleUnits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Units())
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.PendingEvents())
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	sectorID := r.PathValue("sectorId")
	unit, decision, err := s.engine.Deploy(r.Context(), sectorID)
	switch {
	case errors.Is(err, engine.ErrSectorNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, engine.ErrNoWindData):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("deploy failed", "sector_id", sectorID, "error", err)
		writeError(w, http.StatusInternalServerError, "deploy failed")
		return
	}
	if unit == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"reason": decision.Reason})
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("unitId")
	unit, err := s.engine.Recall(r.Context(), unitID)
	switch {
	case errors.Is(err, deployment.ErrUnitNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, deployment.ErrNotRecallable):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("recall failed", "unit_id", unitID, "error", err)
		writeError(w, http.StatusInternalServerError, "recall failed")
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

type acknowledgeRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "request body must carry a userId")
		return
	}

	a, err := s.engine.AcknowledgeAlert(r.Context(), r.PathValue("alertId"), req.UserID)
	switch {
	case errors.Is(err, alert.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "acknowledge failed")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.RefreshPartition(r.Context())
	if err != nil {
		s.logger.Error("partition refresh failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "partition refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sectors": count})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
