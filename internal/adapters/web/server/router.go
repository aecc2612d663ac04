package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/mids/internal/adapters/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(s.logger))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/ws", s.Hub)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimitMiddleware(s.limiter))

	// Ingestion
	api.HandleFunc("/telemetry", s.TelemetryHandler.HandleIngest).Methods(http.MethodPost)

	// Events
	api.HandleFunc("/events", s.EventHandler.HandleList).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}", s.EventHandler.HandleGet).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}/history", s.EventHandler.HandleHistory).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}/resolve", s.EventHandler.HandleResolve).Methods(http.MethodPost)
	api.HandleFunc("/events/{id}/explain", s.EventHandler.HandleExplain).Methods(http.MethodPost)

	api.HandleFunc("/decisions", s.DecisionHandler.HandleList).Methods(http.MethodGet)

	// Devices
	api.HandleFunc("/devices", s.DeviceHandler.HandleList).Methods(http.MethodGet)
	api.HandleFunc("/devices/top-risk", s.DeviceHandler.HandleTopRisk).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/risk", s.DeviceHandler.HandleRisk).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/report.pdf", s.DeviceHandler.HandleReport).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/override", s.DeviceHandler.HandleOverride).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/trusted-network", s.DeviceHandler.HandleTrustedNetwork).Methods(http.MethodPut)

	// Control
	api.HandleFunc("/overrides/reset", s.ControlHandler.HandleResetAll).Methods(http.MethodPost)
	api.HandleFunc("/dispatches/{id}/completion", s.ControlHandler.HandleCompletion).Methods(http.MethodPost)

	return r
}

func writeHealth(w http.ResponseWriter, h health) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h)
}
