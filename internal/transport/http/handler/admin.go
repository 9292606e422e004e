package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-jobboard-trust/internal/application/employer"
	"github.com/go-jobboard-trust/internal/domain"
)

// JobDecider applies admin decisions to jobs.
type JobDecider interface {
	Decide(ctx context.Context, jobID string, decision domain.Decision) error
	Reopen(ctx context.Context, jobID string) error
}

// AdminHandler handles the moderation queue and employer approval.
type AdminHandler struct {
	decider   JobDecider
	tracker   FlagTracker
	employers employer.Service
}

func NewAdminHandler(decider JobDecider, tracker FlagTracker, employers employer.Service) *AdminHandler {
	return &AdminHandler{decider: decider, tracker: tracker, employers: employers}
}

func (h *AdminHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req domain.DecisionRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	d, err := domain.ParseDecision(req.Decision)
	if err != nil {
		httpError(w, err)
		return
	}
	if err := h.decider.Decide(r.Context(), chi.URLParam(r, "id"), d); err != nil {
		httpError(w, err)
		return
	}
	msg := "job restored"
	if d == domain.DecisionRemove {
		msg = "job removed"
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: msg})
}

func (h *AdminHandler) Reports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.tracker.Reports(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	if reports == nil {
		reports = []domain.FlagReport{}
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: reports})
}

func (h *AdminHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	if err := h.decider.Reopen(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "job reopened"})
}

func (h *AdminHandler) ApproveEmployer(w http.ResponseWriter, r *http.Request) {
	var req domain.ApproveEmployerRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	n, err := h.employers.SetApproval(r.Context(), chi.URLParam(r, "id"), *req.Approved)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PromotedEnvelope{Promoted: n})
}
