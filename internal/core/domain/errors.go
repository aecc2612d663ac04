package domain

import "errors"

// Pipeline error taxonomy.
var (
	// ErrInsufficientData marks a scorer input that cannot be evaluated. Never fatal.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegradedTick marks a tick where at least one scorer timed out and stale scores were reused.
	ErrDegradedTick = errors.New("degraded tick")

	// ErrDispatchFailure marks a protective action that was not confirmed by the dispatcher.
	ErrDispatchFailure = errors.New("dispatch failure")

	// ErrStoreWrite marks a persistence failure; evaluation continues in memory.
	ErrStoreWrite = errors.New("store write failure")
)

// Lookup and validation errors.
var (
	ErrInvalidSnapshot   = errors.New("invalid channel snapshot")
	ErrDuplicateSnapshot = errors.New("duplicate telemetry message")
	ErrInvalidDeviceID   = errors.New("invalid device id")
	ErrUnknownDevice     = errors.New("unknown device")
	ErrEventNotFound     = errors.New("threat event not found")
	ErrEventResolved     = errors.New("threat event already resolved")
	ErrDecisionNotFound  = errors.New("policy decision not found")
	ErrDispatchNotFound  = errors.New("dispatch not found")
	ErrInvalidOverride   = errors.New("invalid manual override")
	ErrInvalidSeverity   = errors.New("invalid severity")

	// ErrExplainerUnavailable is returned when no enrichment service is configured.
	ErrExplainerUnavailable = errors.New("explainer unavailable")
)
