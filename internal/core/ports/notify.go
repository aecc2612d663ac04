package ports

import (
	"context"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// EventPublisher fans threat events and decisions out to live consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.ThreatEvent) error
	PublishDecision(ctx context.Context, decision domain.PolicyDecision) error
}

// Explainer produces a free-text narrative for a threat event. Best effort.
type Explainer interface {
	Explain(ctx context.Context, event domain.ThreatEvent) (string, error)
}

// RiskSink receives per-device risk snapshots after every tick.
type RiskSink interface {
	StoreRisk(ctx context.Context, snapshot domain.DeviceRiskSnapshot) error
}

// VendorLookup resolves the vendor name of a hardware address.
type VendorLookup interface {
	LookupVendor(ctx context.Context, mac string) (string, error)
}
