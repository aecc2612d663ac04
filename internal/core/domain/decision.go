package domain

import "time"

// PolicyState is the protective posture of a device.
type PolicyState string

const (
	StateSecure        PolicyState = "SECURE"
	StateElevated      PolicyState = "ELEVATED"
	StateDefenseActive PolicyState = "DEFENSE_ACTIVE"
)

// Rank orders states from least to most protective.
func (s PolicyState) Rank() int {
	switch s {
	case StateElevated:
		return 1
	case StateDefenseActive:
		return 2
	}
	return 0
}

// ActionType names a protective action handed to the dispatcher.
type ActionType string

const (
	ActionNotify     ActionType = "NOTIFY"
	ActionDisconnect ActionType = "DISCONNECT"
	ActionLockdown   ActionType = "LOCKDOWN"
	ActionIsolate    ActionType = "ISOLATE"
	ActionReset      ActionType = "RESET"
)

// ParseAction validates an action name.
func ParseAction(s string) (ActionType, bool) {
	a := ActionType(s)
	switch a {
	case ActionNotify, ActionDisconnect, ActionLockdown, ActionIsolate, ActionReset:
		return a, true
	}
	return "", false
}

// Rule identifiers recorded as decision rationale.
const (
	RuleCriticalVector   = "R1_critical_vector"
	RuleGlobalRisk       = "R1_global_risk"
	RuleElevatedRisk     = "R2_elevated_risk"
	RuleSecure           = "R3_secure"
	RuleHysteresisHold   = "R3_hysteresis_hold"
	RuleDwellRelease     = "R3_dwell_release"
	RuleManualOverride   = "manual_override"
	AnnotationDispatch   = "dispatch"
	AnnotationDurability = "durability"
)

// DispatchStatus is the dispatcher's answer for one action.
type DispatchStatus string

const (
	DispatchAccepted  DispatchStatus = "accepted"
	DispatchCompleted DispatchStatus = "completed"
	DispatchFailed    DispatchStatus = "failed"
)

// Final reports whether no further outcome is expected for the dispatch.
func (s DispatchStatus) Final() bool {
	return s == DispatchCompleted || s == DispatchFailed
}

// DispatchRequest is one action handed to the external dispatcher.
type DispatchRequest struct {
	ID         string     `json:"id"`
	DecisionID string     `json:"decision_id"`
	DeviceID   string     `json:"device_id"`
	Action     ActionType `json:"action"`
	Reason     string     `json:"reason"`
	IssuedAt   time.Time  `json:"issued_at"`
}

// DispatchOutcome is the dispatcher's result, immediate or reported later.
type DispatchOutcome struct {
	DispatchID string         `json:"dispatch_id"`
	Status     DispatchStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	At         time.Time      `json:"at"`
}

// Annotation is a late fact attached to an already recorded decision.
type Annotation struct {
	Kind       string         `json:"kind"`
	DispatchID string         `json:"dispatch_id,omitempty"`
	Action     ActionType     `json:"action,omitempty"`
	Status     DispatchStatus `json:"status,omitempty"`
	Message    string         `json:"message,omitempty"`
	At         time.Time      `json:"at"`
}

// PolicyDecision is one append-only record of a policy evaluation.
type PolicyDecision struct {
	ID                 string       `json:"id"`
	DeviceID           string       `json:"device_id"`
	GlobalRisk         float64      `json:"global_risk"`
	RawRisk            float64      `json:"raw_risk"`
	PreviousState      PolicyState  `json:"previous_state"`
	State              PolicyState  `json:"state"`
	Actions            []ActionType `json:"actions_triggered"`
	Rationale          string       `json:"rationale"`
	Implicated         []Channel    `json:"implicated_channels,omitempty"`
	Actor              string       `json:"actor,omitempty"`
	Degraded           bool         `json:"degraded"`
	DurabilityDegraded bool         `json:"durability_degraded"`
	Annotations        []Annotation `json:"annotations,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
	PrevHash           string       `json:"prev_hash"`
	Hash               string       `json:"hash"`
}

// Clone returns a copy with independent slices.
func (d PolicyDecision) Clone() PolicyDecision {
	cp := d
	cp.Actions = append([]ActionType(nil), d.Actions...)
	cp.Implicated = append([]Channel(nil), d.Implicated...)
	cp.Annotations = append([]Annotation(nil), d.Annotations...)
	return cp
}

// StateChanged reports whether the decision moved the device to a new state.
func (d PolicyDecision) StateChanged() bool {
	return d.PreviousState != d.State
}

// DecisionFilter selects decisions from the audit log. Zero fields do not filter.
type DecisionFilter struct {
	DeviceID  string
	Rationale string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Matches evaluates the filter against one decision.
func (f DecisionFilter) Matches(d PolicyDecision) bool {
	if f.DeviceID != "" && d.DeviceID != f.DeviceID {
		return false
	}
	if f.Rationale != "" && d.Rationale != f.Rationale {
		return false
	}
	if !f.Since.IsZero() && d.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && d.Timestamp.After(f.Until) {
		return false
	}
	return true
}
