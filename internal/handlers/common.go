package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lehigh-university-libraries/shelfripper/internal/download"
	"github.com/lehigh-university-libraries/shelfripper/internal/models"
	"github.com/lehigh-university-libraries/shelfripper/internal/storage"
)

// OrchestratorFactory builds a fresh orchestrator for each job
type OrchestratorFactory func() *download.Orchestrator

type Handler struct {
	jobStore        *storage.JobStore
	newOrchestrator OrchestratorFactory

	// jobs run under baseCtx so they outlive the request that created them
	baseCtx context.Context
	wg      sync.WaitGroup
}

func New(ctx context.Context, factory OrchestratorFactory) *Handler {
	return &Handler{
		jobStore:        storage.New(),
		newOrchestrator: factory,
		baseCtx:         ctx,
	}
}

// Routes registers the API on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", h.HandleJobs)
	mux.HandleFunc("/api/jobs/", h.HandleJobDetail)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}

// Wait blocks until every started job has stopped
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Job helpers
func (h *Handler) getJobOrError(w http.ResponseWriter, jobID string) (*models.Job, bool) {
	job, exists := h.jobStore.Get(jobID)
	if !exists {
		h.writeError(w, "Job not found", http.StatusNotFound)
		return nil, false
	}
	return job, true
}
