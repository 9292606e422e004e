package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/transport/http/middleware"
)

// JobGate is the part of the moderation gate the job endpoints use.
type JobGate interface {
	CreateJob(ctx context.Context, employerID, title string) (*domain.Job, error)
	Job(ctx context.Context, jobID string) (*domain.Job, error)
}

// FlagTracker records community reports.
type FlagTracker interface {
	ReportJob(ctx context.Context, jobID, reporterID, reason string) error
	Reports(ctx context.Context, jobID string) ([]domain.FlagReport, error)
}

// JobHandler handles job creation, lookup and community flagging.
type JobHandler struct {
	gate    JobGate
	tracker FlagTracker
}

func NewJobHandler(gate JobGate, tracker FlagTracker) *JobHandler {
	return &JobHandler{gate: gate, tracker: tracker}
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CreateJobRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	j, err := h.gate.CreateJob(r.Context(), claims.UserID, req.Title)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.gate.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JobHandler) Flag(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.FlagJobRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	if err := h.tracker.ReportJob(r.Context(), chi.URLParam(r, "id"), claims.UserID, req.Reason); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "report recorded"})
}
