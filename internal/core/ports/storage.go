package ports

import (
	"context"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// EventRepository persists threat events and their append-only revision history.
type EventRepository interface {
	// SaveEvent inserts or updates the current view of an event.
	SaveEvent(ctx context.Context, event domain.ThreatEvent) error

	// AppendRevision records one lifecycle step. Revisions are never rewritten.
	AppendRevision(ctx context.Context, rev domain.EventRevision) error

	// ListEvents returns events matching the filter, oldest first.
	ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.ThreatEvent, error)

	// ListRevisions returns the history of one event in sequence order.
	ListRevisions(ctx context.Context, eventID string) ([]domain.EventRevision, error)
}

// DecisionRepository persists the policy decision audit log.
type DecisionRepository interface {
	// SaveDecision stores a decision; saving the same id again only updates annotations.
	SaveDecision(ctx context.Context, decision domain.PolicyDecision) error

	// ListDecisions returns decisions matching the filter, oldest first.
	ListDecisions(ctx context.Context, filter domain.DecisionFilter) ([]domain.PolicyDecision, error)
}

// ProfileRepository persists device reference profiles.
type ProfileRepository interface {
	SaveProfile(ctx context.Context, profile domain.DeviceProfile) error
	ListProfiles(ctx context.Context) ([]domain.DeviceProfile, error)
}

// Storage defines the behavior for data persistence.
type Storage interface {
	EventRepository
	DecisionRepository
	ProfileRepository

	// Close closes the storage connection.
	Close() error
}

// WriteQueue accepts deferred store writes and retries them until they succeed.
type WriteQueue interface {
	// Enqueue schedules a write. It never blocks the caller on the store.
	Enqueue(kind string, write func(ctx context.Context) error)

	// Degraded reports whether writes are currently failing.
	Degraded() bool
}
