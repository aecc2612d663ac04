package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

// ControlHandler serves fleet-wide controls and dispatcher callbacks.
type ControlHandler struct {
	Service ports.CorrelationService
}

// NewControlHandler creates a new ControlHandler
func NewControlHandler(service ports.CorrelationService) *ControlHandler {
	return &ControlHandler{Service: service}
}

// HandleResetAll applies RESET to every known device.
func (h *ControlHandler) HandleResetAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	decisions, err := h.Service.ResetAll(r.Context(), actorFrom(r, req.Actor))
	if decisions == nil {
		decisions = []domain.PolicyDecision{}
	}
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "decisions": decisions})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

// HandleCompletion records the late outcome of an accepted dispatch.
func (h *ControlHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	status := domain.DispatchStatus(req.Status)
	if !status.Final() {
		badRequest(w, "status must be completed or failed")
		return
	}

	err := h.Service.ReportCompletion(r.Context(), domain.DispatchOutcome{
		DispatchID: mux.Vars(r)["id"],
		Status:     status,
		Reason:     req.Reason,
		At:         time.Now().UTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
