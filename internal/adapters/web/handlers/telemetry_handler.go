package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// Ingestor decodes and ingests one raw telemetry envelope.
type Ingestor interface {
	Handle(ctx context.Context, transport string, raw []byte) (domain.ChannelSnapshot, error)
}

// TelemetryHandler accepts telemetry pushed over HTTP.
type TelemetryHandler struct {
	Ingest Ingestor
}

// NewTelemetryHandler creates a new TelemetryHandler
func NewTelemetryHandler(ingest Ingestor) *TelemetryHandler {
	return &TelemetryHandler{Ingest: ingest}
}

// HandleIngest accepts one envelope and answers 202 once it is queued for the next tick.
func (h *TelemetryHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "request body too large")
		return
	}

	snap, err := h.Ingest.Handle(r.Context(), "http", raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id":   snap.DeviceID,
		"channel":     snap.Channel,
		"observed_at": snap.ObservedAt,
	})
}
