package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

// EventHandler serves threat events and their lifecycle operations.
type EventHandler struct {
	Service ports.CorrelationService
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(service ports.CorrelationService) *EventHandler {
	return &EventHandler{Service: service}
}

// HandleList returns events filtered by device, channel, status and time window.
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, until, limit, err := window(q)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	filter := domain.EventFilter{
		DeviceID: q.Get("device"),
		Since:    since,
		Until:    until,
		Limit:    limit,
	}
	if c := q.Get("channel"); c != "" {
		ch, err := domain.ParseChannel(c)
		if err != nil {
			badRequest(w, "unknown channel")
			return
		}
		filter.Channel = ch
	}
	if s := q.Get("status"); s != "" {
		status := domain.EventStatus(s)
		if status != domain.EventActive && status != domain.EventAnalyzing && status != domain.EventResolved {
			badRequest(w, "status must be active, analyzing or resolved")
			return
		}
		filter.Status = status
	}

	events, err := h.Service.Events(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.ThreatEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandleGet returns one event.
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.Event(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleHistory returns the revision history of one event.
func (h *EventHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	revs, err := h.Service.EventHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

// HandleResolve closes an event. Resolving twice answers 409.
func (h *EventHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	ev, err := h.Service.ResolveEvent(r.Context(), mux.Vars(r)["id"], actorFrom(r, req.Actor))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleExplain asks the enrichment service for a narrative.
func (h *EventHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.ExplainEvent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
