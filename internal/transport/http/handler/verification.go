package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-jobboard-trust/internal/application/verification"
	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/transport/http/middleware"
)

// VerificationEnvelope is returned by the send endpoint. Error is set when the
// code was stored but could not be delivered.
type VerificationEnvelope struct {
	*verification.Result
	Error string `json:"error,omitempty"`
}

// VerificationHandler issues and confirms contact verification codes for the
// authenticated subject.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

func (h *VerificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ch, err := domain.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		httpError(w, err)
		return
	}
	res, err := h.svc.RequestCode(r.Context(), claims.UserID, ch)
	if err != nil {
		if errors.Is(err, domain.ErrDispatchFailed) && res != nil {
			writeJSON(w, http.StatusInternalServerError, VerificationEnvelope{Result: res, Error: domain.ErrDispatchFailed.Error()})
			return
		}
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerificationEnvelope{Result: res})
}

func (h *VerificationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ch, err := domain.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		httpError(w, err)
		return
	}
	var req domain.ConfirmCodeRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	if err := h.svc.VerifyCode(r.Context(), claims.UserID, ch, req.Code); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: string(ch) + " verified"})
}

// Status reports whether the channel is verified and whether a code is outstanding.
func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ch, err := domain.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		httpError(w, err)
		return
	}
	st, err := h.svc.Status(r.Context(), claims.UserID, ch)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
