package correlator

import (
	"context"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// DeviceRisk returns the latest fused risk, policy state and profile confidence of a device.
func (e *Engine) DeviceRisk(ctx context.Context, deviceID string) (domain.DeviceRiskSnapshot, error) {
	dev, err := e.lookup(deviceID)
	if err != nil {
		return domain.DeviceRiskSnapshot{}, err
	}
	dev.mu.Lock()
	state := dev.machine.State()
	dev.mu.Unlock()

	risk, ok := e.agg.Snapshot(deviceID)
	if !ok {
		risk = domain.GlobalRiskState{
			DeviceID:      deviceID,
			LastScores:    map[domain.Channel]domain.VectorScore{},
			Contributions: map[domain.Channel]float64{},
		}
	}
	snap := domain.DeviceRiskSnapshot{
		Risk:         risk,
		State:        state,
		ActiveEvents: len(e.events.ListActive(deviceID)),
	}
	if p := e.profiles.Get(deviceID); p != nil {
		snap.Confidence = p.Confidence
	}
	return snap, nil
}

// Events returns events matching the filter, oldest first.
func (e *Engine) Events(ctx context.Context, filter domain.EventFilter) ([]domain.ThreatEvent, error) {
	return e.events.Query(filter), nil
}

// Event returns one event.
func (e *Engine) Event(ctx context.Context, id string) (domain.ThreatEvent, error) {
	return e.events.Get(id)
}

// EventHistory returns the revision history of one event.
func (e *Engine) EventHistory(ctx context.Context, id string) ([]domain.EventRevision, error) {
	return e.events.Revisions(id)
}

// Decisions returns audit log entries matching the filter.
func (e *Engine) Decisions(ctx context.Context, filter domain.DecisionFilter) ([]domain.PolicyDecision, error) {
	return e.decisions.Query(filter), nil
}

// VerifyDecisions checks the integrity of the decision hash chain.
func (e *Engine) VerifyDecisions() error {
	return e.decisions.Verify()
}

// IncidentReport gathers the state, events, decisions and application findings of a device.
func (e *Engine) IncidentReport(ctx context.Context, deviceID string) (domain.IncidentReport, error) {
	risk, err := e.DeviceRisk(ctx, deviceID)
	if err != nil {
		return domain.IncidentReport{}, err
	}
	dev, _ := e.lookup(deviceID)

	report := domain.IncidentReport{
		DeviceID:    deviceID,
		GeneratedAt: e.clock(),
		State:       risk.State,
		Risk:        risk.Risk,
		Events:      e.events.Query(domain.EventFilter{DeviceID: deviceID}),
		Decisions:   e.decisions.Query(domain.DecisionFilter{DeviceID: deviceID}),
		Confidence:  risk.Confidence,
		ChainValid:  e.decisions.Verify() == nil,
	}

	dev.mu.Lock()
	apps := dev.lastApps
	dev.mu.Unlock()
	if apps != nil {
		e.mu.RLock()
		assessor := e.apps
		e.mu.RUnlock()
		report.Apps = assessor.AssessAll(apps.Apps)
	}
	return report, nil
}
