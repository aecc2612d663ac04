package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/mids/internal/adapters/cache"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubIngestor struct {
	raw []byte
	err error
}

func (s *stubIngestor) Handle(_ context.Context, transport string, raw []byte) (domain.ChannelSnapshot, error) {
	s.raw = raw
	if s.err != nil {
		return domain.ChannelSnapshot{}, s.err
	}
	return domain.ChannelSnapshot{DeviceID: "phone-01", Channel: domain.ChannelTraffic}, nil
}

type stubExporter struct{ err error }

func (s stubExporter) ExportIncident(domain.IncidentReport) ([]byte, error) {
	return []byte("%PDF-1.3 fake"), s.err
}

type stubRanker struct {
	ranked []cache.RankedDevice
	err    error
}

func (s stubRanker) TopRisk(context.Context, int64) ([]cache.RankedDevice, error) {
	return s.ranked, s.err
}

// serve routes a single request through a mux so path variables resolve.
func serve(t *testing.T, method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc(pattern, h).Methods(method)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrUnknownDevice, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrEventNotFound), http.StatusNotFound},
		{domain.ErrDispatchNotFound, http.StatusNotFound},
		{domain.ErrEventResolved, http.StatusConflict},
		{domain.ErrDuplicateSnapshot, http.StatusConflict},
		{domain.ErrInvalidSnapshot, http.StatusBadRequest},
		{domain.ErrInvalidOverride, http.StatusBadRequest},
		{domain.ErrExplainerUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestTelemetryHandler(t *testing.T) {
	ing := &stubIngestor{}
	h := NewTelemetryHandler(ing)

	rec := serve(t, http.MethodPost, "/api/v1/telemetry", "/api/v1/telemetry", `{"device_id":"phone-01"}`, h.HandleIngest)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"device_id":"phone-01"}`, string(ing.raw))

	ing.err = fmt.Errorf("%w: bad", domain.ErrInvalidSnapshot)
	rec = serve(t, http.MethodPost, "/api/v1/telemetry", "/api/v1/telemetry", `{}`, h.HandleIngest)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ing.err = domain.ErrDuplicateSnapshot
	rec = serve(t, http.MethodPost, "/api/v1/telemetry", "/api/v1/telemetry", `{}`, h.HandleIngest)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEventHandler_ListFilters(t *testing.T) {
	svc := new(mockService)
	h := NewEventHandler(svc)
	since := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	svc.On("Events", mock.Anything, domain.EventFilter{
		DeviceID: "phone-01",
		Channel:  domain.ChannelWireless,
		Status:   domain.EventActive,
		Since:    since,
		Limit:    5,
	}).Return([]domain.ThreatEvent{{ID: "ev-1"}}, nil)

	rec := serve(t, http.MethodGet, "/api/v1/events",
		"/api/v1/events?device=phone-01&channel=wireless&status=active&since=2026-07-01T00:00:00Z&limit=5", "", h.HandleList)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []domain.ThreatEvent `json:"events"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "ev-1", body.Events[0].ID)
	svc.AssertExpectations(t)
}

func TestEventHandler_ListRejectsBadQuery(t *testing.T) {
	h := NewEventHandler(new(mockService))
	for _, q := range []string{
		"channel=bluetooth",
		"status=closed",
		"since=yesterday",
		"limit=-1",
		"since=2026-07-02T00:00:00Z&until=2026-07-01T00:00:00Z",
	} {
		rec := serve(t, http.MethodGet, "/api/v1/events", "/api/v1/events?"+q, "", h.HandleList)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestEventHandler_EmptyListIsArray(t *testing.T) {
	svc := new(mockService)
	svc.On("Events", mock.Anything, mock.Anything).Return(nil, nil)
	rec := serve(t, http.MethodGet, "/api/v1/events", "/api/v1/events", "", NewEventHandler(svc).HandleList)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestEventHandler_GetAndHistory(t *testing.T) {
	svc := new(mockService)
	h := NewEventHandler(svc)
	svc.On("Event", mock.Anything, "ev-1").Return(domain.ThreatEvent{ID: "ev-1"}, nil)
	svc.On("Event", mock.Anything, "missing").Return(domain.ThreatEvent{}, domain.ErrEventNotFound)
	svc.On("EventHistory", mock.Anything, "ev-1").Return([]domain.EventRevision{{EventID: "ev-1", Seq: 1, Kind: domain.RevisionRaised}}, nil)

	rec := serve(t, http.MethodGet, "/api/v1/events/{id}", "/api/v1/events/ev-1", "", h.HandleGet)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, http.MethodGet, "/api/v1/events/{id}", "/api/v1/events/missing", "", h.HandleGet)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, http.MethodGet, "/api/v1/events/{id}/history", "/api/v1/events/ev-1/history", "", h.HandleHistory)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"raised"`)
}

func TestEventHandler_Resolve(t *testing.T) {
	svc := new(mockService)
	h := NewEventHandler(svc)
	svc.On("ResolveEvent", mock.Anything, "ev-1", "alice").Return(domain.ThreatEvent{ID: "ev-1", Status: domain.EventResolved}, nil).Once()
	svc.On("ResolveEvent", mock.Anything, "ev-1", "operator").Return(domain.ThreatEvent{}, domain.ErrEventResolved).Once()

	rec := serve(t, http.MethodPost, "/api/v1/events/{id}/resolve", "/api/v1/events/ev-1/resolve", `{"actor":"alice"}`, h.HandleResolve)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, http.MethodPost, "/api/v1/events/{id}/resolve", "/api/v1/events/ev-1/resolve", "", h.HandleResolve)
	assert.Equal(t, http.StatusConflict, rec.Code)
	svc.AssertExpectations(t)
}

func TestEventHandler_ExplainUnavailable(t *testing.T) {
	svc := new(mockService)
	svc.On("ExplainEvent", mock.Anything, "ev-1").Return(domain.ThreatEvent{}, domain.ErrExplainerUnavailable)
	rec := serve(t, http.MethodPost, "/api/v1/events/{id}/explain", "/api/v1/events/ev-1/explain", "", NewEventHandler(svc).HandleExplain)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDecisionHandler_List(t *testing.T) {
	svc := new(mockService)
	svc.On("Decisions", mock.Anything, domain.DecisionFilter{
		DeviceID:  "phone-01",
		Rationale: domain.RuleManualOverride,
		Limit:     defaultLimit,
	}).Return([]domain.PolicyDecision{{ID: "dec-1"}}, nil)

	rec := serve(t, http.MethodGet, "/api/v1/decisions", "/api/v1/decisions?device=phone-01&rationale=manual_override", "", NewDecisionHandler(svc).HandleList)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"dec-1"`)
	svc.AssertExpectations(t)
}

func TestDeviceHandler_Risk(t *testing.T) {
	svc := new(mockService)
	h := NewDeviceHandler(svc, stubExporter{}, nil)
	svc.On("DeviceRisk", mock.Anything, "phone-01").Return(domain.DeviceRiskSnapshot{State: domain.StateElevated, Confidence: 0.5}, nil)
	svc.On("DeviceRisk", mock.Anything, "ghost").Return(domain.DeviceRiskSnapshot{}, domain.ErrUnknownDevice)

	rec := serve(t, http.MethodGet, "/api/v1/devices/{id}/risk", "/api/v1/devices/phone-01/risk", "", h.HandleRisk)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.DeviceRiskSnapshot
	decode(t, rec, &snap)
	assert.Equal(t, domain.StateElevated, snap.State)

	rec = serve(t, http.MethodGet, "/api/v1/devices/{id}/risk", "/api/v1/devices/ghost/risk", "", h.HandleRisk)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceHandler_Override(t *testing.T) {
	svc := new(mockService)
	h := NewDeviceHandler(svc, stubExporter{}, nil)
	svc.On("Override", mock.Anything, "phone-01", domain.ActionLockdown, "bob").
		Return(domain.PolicyDecision{ID: "dec-9", Rationale: domain.RuleManualOverride}, nil)

	rec := serve(t, http.MethodPost, "/api/v1/devices/{id}/override", "/api/v1/devices/phone-01/override",
		`{"action":"LOCKDOWN","actor":"bob"}`, h.HandleOverride)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, body := range []string{`{"action":"NOTIFY"}`, `{"action":"lockdown"}`, `{"action":"LOCKDOWN","extra":1}`, `not json`} {
		rec = serve(t, http.MethodPost, "/api/v1/devices/{id}/override", "/api/v1/devices/phone-01/override", body, h.HandleOverride)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	svc.AssertNumberOfCalls(t, "Override", 1)
}

func TestDeviceHandler_TrustedNetwork(t *testing.T) {
	svc := new(mockService)
	h := NewDeviceHandler(svc, stubExporter{}, nil)
	svc.On("EnrollTrustedNetwork", mock.Anything, "phone-01", domain.TrustedNetwork{
		SSID:      "HomeNet",
		VendorOUI: "A4:2B:B0",
		Security:  domain.SecurityWPA2,
		Band:      "5GHz",
	}).Return(domain.DeviceProfile{DeviceID: "phone-01"}, nil)

	rec := serve(t, http.MethodPut, "/api/v1/devices/{id}/trusted-network", "/api/v1/devices/phone-01/trusted-network",
		`{"ssid":"HomeNet","vendor_oui":"A4:2B:B0","security":"wpa2-psk","band":"5"}`, h.HandleTrustedNetwork)
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)

	rec = serve(t, http.MethodPut, "/api/v1/devices/{id}/trusted-network", "/api/v1/devices/phone-01/trusted-network",
		`{"ssid":"HomeNet","vendor_oui":"nope"}`, h.HandleTrustedNetwork)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodPut, "/api/v1/devices/{id}/trusted-network", "/api/v1/devices/phone-01/trusted-network",
		`{"security":"WPA2"}`, h.HandleTrustedNetwork)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceHandler_Report(t *testing.T) {
	svc := new(mockService)
	svc.On("IncidentReport", mock.Anything, "phone-01").Return(domain.IncidentReport{DeviceID: "phone-01"}, nil)

	rec := serve(t, http.MethodGet, "/api/v1/devices/{id}/report.pdf", "/api/v1/devices/phone-01/report.pdf", "",
		NewDeviceHandler(svc, stubExporter{}, nil).HandleReport)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = serve(t, http.MethodGet, "/api/v1/devices/{id}/report.pdf", "/api/v1/devices/phone-01/report.pdf", "",
		NewDeviceHandler(svc, stubExporter{err: errors.New("font missing")}, nil).HandleReport)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDeviceHandler_TopRisk(t *testing.T) {
	svc := new(mockService)

	rec := serve(t, http.MethodGet, "/api/v1/devices/top-risk", "/api/v1/devices/top-risk", "", NewDeviceHandler(svc, nil, nil).HandleTopRisk)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ranker := stubRanker{ranked: []cache.RankedDevice{{DeviceID: "phone-01", Risk: 82}}}
	rec = serve(t, http.MethodGet, "/api/v1/devices/top-risk", "/api/v1/devices/top-risk?n=3", "", NewDeviceHandler(svc, nil, ranker).HandleTopRisk)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"devices":[{"device_id":"phone-01","risk":82}]}`, rec.Body.String())

	rec = serve(t, http.MethodGet, "/api/v1/devices/top-risk", "/api/v1/devices/top-risk?n=0", "", NewDeviceHandler(svc, nil, ranker).HandleTopRisk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControlHandler_ResetAll(t *testing.T) {
	svc := new(mockService)
	svc.On("ResetAll", mock.Anything, "carol").Return([]domain.PolicyDecision{{ID: "a"}, {ID: "b"}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/overrides/reset", nil)
	req.Header.Set("X-Actor", "carol")
	rec := httptest.NewRecorder()
	NewControlHandler(svc).HandleResetAll(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Decisions []domain.PolicyDecision `json:"decisions"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Decisions, 2)
}

func TestControlHandler_Completion(t *testing.T) {
	svc := new(mockService)
	h := NewControlHandler(svc)
	svc.On("ReportCompletion", mock.Anything, mock.MatchedBy(func(out domain.DispatchOutcome) bool {
		return out.DispatchID == "disp-1" && out.Status == domain.DispatchCompleted
	})).Return(nil)
	svc.On("ReportCompletion", mock.Anything, mock.MatchedBy(func(out domain.DispatchOutcome) bool {
		return out.DispatchID == "gone"
	})).Return(domain.ErrDispatchNotFound)

	rec := serve(t, http.MethodPost, "/api/v1/dispatches/{id}/completion", "/api/v1/dispatches/disp-1/completion", `{"status":"completed"}`, h.HandleCompletion)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, http.MethodPost, "/api/v1/dispatches/{id}/completion", "/api/v1/dispatches/gone/completion", `{"status":"failed","reason":"agent crashed"}`, h.HandleCompletion)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, http.MethodPost, "/api/v1/dispatches/{id}/completion", "/api/v1/dispatches/disp-1/completion", `{"status":"accepted"}`, h.HandleCompletion)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
