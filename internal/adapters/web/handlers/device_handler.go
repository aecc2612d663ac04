package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/mids/internal/adapters/cache"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

// ReportExporter renders an incident report document.
type ReportExporter interface {
	ExportIncident(report domain.IncidentReport) ([]byte, error)
}

// RiskRanker lists the riskiest devices from the shared cache.
type RiskRanker interface {
	TopRisk(ctx context.Context, n int64) ([]cache.RankedDevice, error)
}

// DeviceHandler serves per-device risk, overrides, enrollment and reports.
type DeviceHandler struct {
	Service  ports.CorrelationService
	Exporter ReportExporter
	Ranker   RiskRanker
}

// NewDeviceHandler creates a new DeviceHandler. ranker may be nil.
func NewDeviceHandler(service ports.CorrelationService, exporter ReportExporter, ranker RiskRanker) *DeviceHandler {
	return &DeviceHandler{Service: service, Exporter: exporter, Ranker: ranker}
}

// HandleList returns the known device ids.
func (h *DeviceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	devices := h.Service.Devices()
	if devices == nil {
		devices = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// HandleRisk returns the fused risk, policy state and confidence of a device.
func (h *DeviceHandler) HandleRisk(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.DeviceRisk(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleTopRisk returns the leaderboard kept in the risk cache.
func (h *DeviceHandler) HandleTopRisk(w http.ResponseWriter, r *http.Request) {
	if h.Ranker == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "risk cache not configured"})
		return
	}
	n := int64(10)
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v <= 0 || v > maxLimit {
			badRequest(w, "n must be between 1 and 1000")
			return
		}
		n = v
	}

	ranked, err := h.Ranker.TopRisk(r.Context(), n)
	if err != nil {
		slog.Warn("risk leaderboard unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "risk cache unavailable"})
		return
	}
	if ranked == nil {
		ranked = []cache.RankedDevice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": ranked})
}

// HandleOverride forces LOCKDOWN or RESET on a device.
func (h *DeviceHandler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		Actor  string `json:"actor"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	action, ok := domain.ParseAction(req.Action)
	if !ok || (action != domain.ActionLockdown && action != domain.ActionReset) {
		badRequest(w, "action must be LOCKDOWN or RESET")
		return
	}

	decision, err := h.Service.Override(r.Context(), mux.Vars(r)["id"], action, actorFrom(r, req.Actor))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// HandleTrustedNetwork enrolls the trusted wireless identity of a device.
func (h *DeviceHandler) HandleTrustedNetwork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SSID       string `json:"ssid"`
		VendorOUI  string `json:"vendor_oui"`
		VendorName string `json:"vendor_name"`
		Security   string `json:"security"`
		Band       string `json:"band"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SSID == "" {
		badRequest(w, "ssid is required")
		return
	}
	if req.VendorOUI != "" && !domain.IsValidOUI(req.VendorOUI) {
		badRequest(w, "vendor_oui must look like AA:BB:CC")
		return
	}

	tn := domain.TrustedNetwork{
		SSID:       req.SSID,
		VendorOUI:  req.VendorOUI,
		VendorName: req.VendorName,
		Security:   domain.ParseSecurityClass(req.Security),
		Band:       req.Band,
	}
	if band, err := domain.ParseBand(req.Band); err == nil {
		tn.Band = string(band)
	}

	prof, err := h.Service.EnrollTrustedNetwork(r.Context(), mux.Vars(r)["id"], tn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

// HandleReport renders the incident report of a device as PDF.
func (h *DeviceHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, err := h.Service.IncidentReport(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	pdf, err := h.Exporter.ExportIncident(report)
	if err != nil {
		slog.Error("failed to render incident report", "device", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to render report"})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="incident-`+id+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
