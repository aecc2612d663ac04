// Package server exposes the correlation engine over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lcalzada-xor/mids/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/mids/internal/adapters/web/hub"
	"github.com/lcalzada-xor/mids/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options are the collaborators of the server. Service, Ingest and Hub are required.
type Options struct {
	Addr           string
	Service        ports.CorrelationService
	Ingest         handlers.Ingestor
	Hub            *hub.Hub
	Exporter       handlers.ReportExporter
	Ranker         handlers.RiskRanker
	Writes         ports.WriteQueue
	Store          Pinger
	RequestsPerMin int
	Logger         *slog.Logger
}

// Server handles HTTP and websocket connections.
type Server struct {
	Addr   string
	Hub    *hub.Hub
	Writes ports.WriteQueue
	Store  Pinger

	TelemetryHandler *handlers.TelemetryHandler
	EventHandler     *handlers.EventHandler
	DecisionHandler  *handlers.DecisionHandler
	DeviceHandler    *handlers.DeviceHandler
	ControlHandler   *handlers.ControlHandler

	limiter *middleware.RateLimiter
	logger  *slog.Logger
	srv     *http.Server
}

// NewServer creates a new web server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perMin := opts.RequestsPerMin
	if perMin <= 0 {
		perMin = 600
	}

	return &Server{
		Addr:   opts.Addr,
		Hub:    opts.Hub,
		Writes: opts.Writes,
		Store:  opts.Store,

		TelemetryHandler: handlers.NewTelemetryHandler(opts.Ingest),
		EventHandler:     handlers.NewEventHandler(opts.Service),
		DecisionHandler:  handlers.NewDecisionHandler(opts.Service),
		DeviceHandler:    handlers.NewDeviceHandler(opts.Service, opts.Exporter, opts.Ranker),
		ControlHandler:   handlers.NewControlHandler(opts.Service),

		limiter: middleware.NewRateLimiter(perMin, time.Minute),
		logger:  logger,
	}
}

// Handler returns the fully instrumented route tree.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(SetupRoutes(s), "mids-http")
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("web server shutdown error", "error", err)
		}
		s.Hub.Close()
		s.limiter.Stop()
	}()

	s.logger.Info("web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type health struct {
	Status             string `json:"status"`
	Store              string `json:"store"`
	DurabilityDegraded bool   `json:"durability_degraded"`
	Clients            int    `json:"websocket_clients"`
}

// handleHealth answers 200 while the engine can evaluate. A failing store only
// degrades durability and is reported without failing the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok", Store: "ok", Clients: s.Hub.Clients()}
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			h.Store = "unreachable"
			h.Status = "degraded"
		}
	}
	if s.Writes != nil && s.Writes.Degraded() {
		h.DurabilityDegraded = true
		h.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	writeHealth(w, h)
}
