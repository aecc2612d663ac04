package domain

import (
	"strings"
	"time"
)

// Severity represents the criticality of a threat event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity accepts any casing of a known severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", ErrInvalidSeverity
	}
	return sev, nil
}

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// EventStatus is the lifecycle position of a threat event.
type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventAnalyzing EventStatus = "analyzing"
	EventResolved  EventStatus = "resolved"
)

// IsOpen reports whether the event still counts as an unresolved condition.
func (s EventStatus) IsOpen() bool {
	return s == EventActive || s == EventAnalyzing
}

// ThreatEvent is the durable record of a raised condition. Events are never deleted.
type ThreatEvent struct {
	ID          string      `json:"id"`
	DeviceID    string      `json:"device_id"`
	Channel     Channel     `json:"channel"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Evidence    []string    `json:"evidence"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy  string      `json:"resolved_by,omitempty"`
	Narrative   string      `json:"narrative,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with the receiver.
func (e ThreatEvent) Clone() ThreatEvent {
	cp := e
	cp.Evidence = append([]string(nil), e.Evidence...)
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		cp.ResolvedAt = &t
	}
	return cp
}

// RevisionKind names the mutation recorded by an EventRevision.
type RevisionKind string

const (
	RevisionRaised    RevisionKind = "raised"
	RevisionUpdated   RevisionKind = "updated"
	RevisionAnalyzing RevisionKind = "analyzing"
	RevisionNarrative RevisionKind = "narrative"
	RevisionResolved  RevisionKind = "resolved"
)

// EventRevision is one append-only history entry of a threat event.
type EventRevision struct {
	EventID   string       `json:"event_id"`
	Seq       int          `json:"seq"`
	Kind      RevisionKind `json:"kind"`
	Severity  Severity     `json:"severity"`
	Status    EventStatus  `json:"status"`
	Actor     string       `json:"actor"`
	Note      string       `json:"note,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// EventFilter selects threat events. Zero fields do not filter.
type EventFilter struct {
	DeviceID string
	Channel  Channel
	Status   EventStatus
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Matches evaluates the filter against one event.
func (f EventFilter) Matches(e ThreatEvent) bool {
	if f.DeviceID != "" && e.DeviceID != f.DeviceID {
		return false
	}
	if f.Channel != "" && e.Channel != f.Channel {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
		return false
	}
	return true
}
