// Package api exposes the remedyd HTTP surface: alert ingestion, health
// and the operational endpoints for rules and records.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lvonguyen/remedyd/internal/observability"
	"github.com/lvonguyen/remedyd/internal/remediation"
	"github.com/lvonguyen/remedyd/internal/rules"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	orch     *remediation.Orchestrator
	registry *rules.Registry
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewServer creates the HTTP surface. metrics may be nil.
func NewServer(orch *remediation.Orchestrator, registry *rules.Registry, metrics *observability.Metrics, logger *zap.Logger) *Server {
	return &Server{
		orch:     orch,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/webhook", s.handleWebhook)
	r.Get("/health", s.handleHealth)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/rules", s.handleListRules)
		r.Post("/rules/{id}/enable", s.handleEnableRule(true))
		r.Post("/rules/{id}/disable", s.handleEnableRule(false))

		r.Get("/records", s.handleListRecords)
		r.Get("/records/{id}", s.handleGetRecord)
		r.Post("/records/{id}/abort", s.handleAbortRecord)
	})

	return r
}

// webhookRequest is the alert batch delivered by the monitoring
// pipeline.
type webhookRequest struct {
	Alerts []remediation.Alert `json:"alerts"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	records := make([]string, 0, len(req.Alerts))
	for _, alert := range req.Alerts {
		if id, outcome := s.orch.ProcessAlert(r.Context(), alert); outcome == remediation.OutcomeCreated {
			records = append(records, id)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"processed": len(records),
		"records":   records,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running, total, _ := s.orch.Store().Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"rules_loaded":  s.registry.Count(),
		"running_tasks": running,
		"total_records": total,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status(r.Context()))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

func (s *Server) handleEnableRule(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.registry.SetEnabled(id, enabled); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      id,
			"enabled": enabled,
		})
	}
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	status := remediation.Status(r.URL.Query().Get("status"))

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	list := s.orch.Store().List(status, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"records": list,
		"count":   len(list),
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, ok := s.orch.Store().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAbortRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.Abort(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"status": "abort requested",
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{
		"status":  "error",
		"message": message,
	})
}
