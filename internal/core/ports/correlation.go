package ports

import (
	"context"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// SnapshotSink accepts validated channel snapshots from any ingestion transport.
type SnapshotSink interface {
	Ingest(ctx context.Context, snap domain.ChannelSnapshot) error
}

// CorrelationService is the query and control surface of the correlation engine.
type CorrelationService interface {
	SnapshotSink

	// Devices lists every device the engine has seen.
	Devices() []string

	// DeviceRisk returns the current fused risk, state and confidence of a device.
	DeviceRisk(ctx context.Context, deviceID string) (domain.DeviceRiskSnapshot, error)

	Events(ctx context.Context, filter domain.EventFilter) ([]domain.ThreatEvent, error)
	Event(ctx context.Context, id string) (domain.ThreatEvent, error)
	EventHistory(ctx context.Context, id string) ([]domain.EventRevision, error)

	// ResolveEvent closes an event on operator request. Resolution is irreversible.
	ResolveEvent(ctx context.Context, id, actor string) (domain.ThreatEvent, error)

	// ExplainEvent requests an enrichment narrative for the event.
	ExplainEvent(ctx context.Context, id string) (domain.ThreatEvent, error)

	Decisions(ctx context.Context, filter domain.DecisionFilter) ([]domain.PolicyDecision, error)

	// Override forces LOCKDOWN or RESET on a device.
	Override(ctx context.Context, deviceID string, action domain.ActionType, actor string) (domain.PolicyDecision, error)

	// ResetAll applies a RESET override to every known device.
	ResetAll(ctx context.Context, actor string) ([]domain.PolicyDecision, error)

	// ReportCompletion applies a late dispatcher outcome to its decision.
	ReportCompletion(ctx context.Context, outcome domain.DispatchOutcome) error

	// EnrollTrustedNetwork sets the trusted wireless identity of a device.
	EnrollTrustedNetwork(ctx context.Context, deviceID string, tn domain.TrustedNetwork) (domain.DeviceProfile, error)

	IncidentReport(ctx context.Context, deviceID string) (domain.IncidentReport, error)
}
