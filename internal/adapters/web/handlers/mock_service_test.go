package handlers

import (
	"context"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Ingest(ctx context.Context, snap domain.ChannelSnapshot) error {
	return m.Called(ctx, snap).Error(0)
}

func (m *mockService) Devices() []string {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]string)
	}
	return nil
}

func (m *mockService) DeviceRisk(ctx context.Context, id string) (domain.DeviceRiskSnapshot, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.DeviceRiskSnapshot), args.Error(1)
}

func (m *mockService) Events(ctx context.Context, f domain.EventFilter) ([]domain.ThreatEvent, error) {
	args := m.Called(ctx, f)
	events, _ := args.Get(0).([]domain.ThreatEvent)
	return events, args.Error(1)
}

func (m *mockService) Event(ctx context.Context, id string) (domain.ThreatEvent, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ThreatEvent), args.Error(1)
}

func (m *mockService) EventHistory(ctx context.Context, id string) ([]domain.EventRevision, error) {
	args := m.Called(ctx, id)
	revs, _ := args.Get(0).([]domain.EventRevision)
	return revs, args.Error(1)
}

func (m *mockService) ResolveEvent(ctx context.Context, id, actor string) (domain.ThreatEvent, error) {
	args := m.Called(ctx, id, actor)
	return args.Get(0).(domain.ThreatEvent), args.Error(1)
}

func (m *mockService) ExplainEvent(ctx context.Context, id string) (domain.ThreatEvent, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ThreatEvent), args.Error(1)
}

func (m *mockService) Decisions(ctx context.Context, f domain.DecisionFilter) ([]domain.PolicyDecision, error) {
	args := m.Called(ctx, f)
	decisions, _ := args.Get(0).([]domain.PolicyDecision)
	return decisions, args.Error(1)
}

func (m *mockService) Override(ctx context.Context, id string, action domain.ActionType, actor string) (domain.PolicyDecision, error) {
	args := m.Called(ctx, id, action, actor)
	return args.Get(0).(domain.PolicyDecision), args.Error(1)
}

func (m *mockService) ResetAll(ctx context.Context, actor string) ([]domain.PolicyDecision, error) {
	args := m.Called(ctx, actor)
	decisions, _ := args.Get(0).([]domain.PolicyDecision)
	return decisions, args.Error(1)
}

func (m *mockService) ReportCompletion(ctx context.Context, out domain.DispatchOutcome) error {
	return m.Called(ctx, out).Error(0)
}

func (m *mockService) EnrollTrustedNetwork(ctx context.Context, id string, tn domain.TrustedNetwork) (domain.DeviceProfile, error) {
	args := m.Called(ctx, id, tn)
	return args.Get(0).(domain.DeviceProfile), args.Error(1)
}

func (m *mockService) IncidentReport(ctx context.Context, id string) (domain.IncidentReport, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.IncidentReport), args.Error(1)
}
