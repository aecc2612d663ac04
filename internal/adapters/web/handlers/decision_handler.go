package handlers

import (
	"net/http"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

// DecisionHandler serves the policy decision audit log.
type DecisionHandler struct {
	Service ports.CorrelationService
}

// NewDecisionHandler creates a new DecisionHandler
func NewDecisionHandler(service ports.CorrelationService) *DecisionHandler {
	return &DecisionHandler{Service: service}
}

// HandleList returns decisions filtered by device, rationale and time window.
func (h *DecisionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, until, limit, err := window(q)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	decisions, err := h.Service.Decisions(r.Context(), domain.DecisionFilter{
		DeviceID:  q.Get("device"),
		Rationale: q.Get("rationale"),
		Since:     since,
		Until:     until,
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if decisions == nil {
		decisions = []domain.PolicyDecision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}
