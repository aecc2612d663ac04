// Package policy implements the per-device protective state machine.
package policy

import (
	"fmt"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// Params holds thresholds and hysteresis settings of the state machine.
type Params struct {
	DefenseThreshold      float64 `yaml:"defense_threshold"`
	ElevatedThreshold     float64 `yaml:"elevated_threshold"`
	HighSeverityThreshold float64 `yaml:"high_severity_threshold"`
	ReleaseThreshold      float64 `yaml:"release_threshold"`
	DwellTicks            int     `yaml:"dwell_ticks"`
	AutoResolveCritical   bool    `yaml:"auto_resolve_critical"`
	FullAudit             bool    `yaml:"full_audit"`

	// IsolateOnDefense adds ISOLATE to the defense actions, for deployments whose
	// dispatcher can quarantine the device on the network.
	IsolateOnDefense bool `yaml:"isolate_on_defense"`
}

// DefaultParams returns the stock thresholds: 80 / 50 / release below 30 for 3 ticks.
func DefaultParams() Params {
	return Params{
		DefenseThreshold:      80,
		ElevatedThreshold:     50,
		HighSeverityThreshold: 65,
		ReleaseThreshold:      30,
		DwellTicks:            3,
		AutoResolveCritical:   false,
		FullAudit:             true,
		IsolateOnDefense:      false,
	}
}

// Raise asks the event store to create or upgrade the event of one channel.
type Raise struct {
	Channel     domain.Channel
	Severity    domain.Severity
	Description string
	Evidence    []string
}

// ResolvePlan tells the caller which open events of the device to close.
// Events on KeepChannels stay open, as do CRITICAL events when KeepCritical is set.
type ResolvePlan struct {
	KeepChannels []domain.Channel
	KeepCritical bool
}

// Outcome is the result of one evaluation. It is applied by the caller.
type Outcome struct {
	Previous   domain.PolicyState
	State      domain.PolicyState
	Rule       string
	Actions    []domain.ActionType
	Raises     []Raise
	Resolve    *ResolvePlan
	Implicated []domain.Channel
	Record     bool
}

// Changed reports whether the evaluation moved the device to another state.
func (o Outcome) Changed() bool {
	return o.Previous != o.State
}

// Machine is the state of one device. It is not safe for concurrent use;
// the owning device worker serializes access.
type Machine struct {
	state domain.PolicyState

	// calm counts consecutive ticks without a defense trigger.
	calm int
	// quiet counts consecutive ticks below the release threshold.
	quiet int

	// episode remembers actions and channels already acted on since the last return to SECURE.
	fired      map[domain.ActionType]bool
	implicated map[domain.Channel]bool
}

// NewMachine creates a machine in the SECURE state.
func NewMachine() *Machine {
	m := &Machine{state: domain.StateSecure}
	m.clearEpisode()
	return m
}

// Restore creates a machine resuming from a persisted state.
func Restore(state domain.PolicyState) *Machine {
	m := NewMachine()
	if state.Rank() > 0 {
		m.state = state
	}
	return m
}

// State returns the current state.
func (m *Machine) State() domain.PolicyState {
	return m.state
}

func (m *Machine) clearEpisode() {
	m.fired = make(map[domain.ActionType]bool)
	m.implicated = make(map[domain.Channel]bool)
	m.calm = 0
	m.quiet = 0
}

// Evaluate applies the transition rules in priority order to a fresh aggregator state.
func (m *Machine) Evaluate(p Params, risk domain.GlobalRiskState) Outcome {
	prev := m.state
	score := risk.SmoothedScore

	if implicated, ok := defenseTrigger(p, risk); ok {
		m.calm, m.quiet = 0, 0
		m.state = domain.StateDefenseActive
		out := Outcome{
			Previous:   prev,
			State:      m.state,
			Rule:       domain.RuleGlobalRisk,
			Implicated: implicated,
		}
		if hasCriticalClass(risk, implicated) {
			out.Rule = domain.RuleCriticalVector
		}
		out.Actions = m.defenseActions(p, prev, implicated)
		for _, ch := range implicated {
			out.Raises = append(out.Raises, raiseFor(risk, ch, domain.SeverityCritical))
		}
		out.Record = p.FullAudit || out.Changed() || len(out.Actions) > 0
		return out
	}

	m.calm++
	if score < p.ReleaseThreshold {
		m.quiet++
	} else {
		m.quiet = 0
	}
	elevated := score > p.ElevatedThreshold

	var out Outcome
	switch {
	case prev == domain.StateSecure && !elevated:
		out = Outcome{State: domain.StateSecure, Rule: domain.RuleSecure}

	case prev != domain.StateSecure && m.quiet >= dwell(p):
		out = Outcome{State: domain.StateSecure, Rule: domain.RuleDwellRelease}
		out.Resolve = &ResolvePlan{
			KeepChannels: risk.CriticalChannels(),
			KeepCritical: !p.AutoResolveCritical,
		}
		m.clearEpisode()

	case prev == domain.StateDefenseActive && m.calm < dwell(p):
		out = Outcome{State: domain.StateDefenseActive, Rule: domain.RuleHysteresisHold}

	case elevated:
		implicated := elevatedChannels(risk)
		out = Outcome{State: domain.StateElevated, Rule: domain.RuleElevatedRisk, Implicated: implicated}
		sev := domain.SeverityMedium
		if score > p.HighSeverityThreshold {
			sev = domain.SeverityHigh
		}
		for _, ch := range implicated {
			out.Raises = append(out.Raises, raiseFor(risk, ch, sev))
		}
		if m.newlyImplicated(implicated) || prev == domain.StateSecure {
			out.Actions = m.fire(domain.ActionNotify, true)
		}

	default:
		// Between the release and elevated thresholds, or still dwelling.
		out = Outcome{State: domain.StateElevated, Rule: domain.RuleHysteresisHold}
	}

	m.state = out.State
	out.Previous = prev
	out.Record = p.FullAudit || out.Changed() || len(out.Actions) > 0
	return out
}

// Override forces a manual transition. LOCKDOWN enters DEFENSE_ACTIVE, RESET returns to SECURE.
func (m *Machine) Override(p Params, action domain.ActionType) (Outcome, error) {
	prev := m.state
	out := Outcome{Previous: prev, Rule: domain.RuleManualOverride, Record: true}

	switch action {
	case domain.ActionLockdown:
		m.calm, m.quiet = 0, 0
		m.state = domain.StateDefenseActive
		m.fired[domain.ActionLockdown] = true
	case domain.ActionReset:
		m.clearEpisode()
		m.state = domain.StateSecure
		out.Resolve = &ResolvePlan{KeepCritical: !p.AutoResolveCritical}
	default:
		return Outcome{}, fmt.Errorf("%w: %s", domain.ErrInvalidOverride, action)
	}

	out.State = m.state
	out.Actions = []domain.ActionType{action}
	return out, nil
}

// defenseActions returns DISCONNECT/LOCKDOWN (and ISOLATE when enabled) once per
// episode, again when a new channel is implicated.
func (m *Machine) defenseActions(p Params, prev domain.PolicyState, implicated []domain.Channel) []domain.ActionType {
	fresh := m.newlyImplicated(implicated)
	entering := prev != domain.StateDefenseActive

	var actions []domain.ActionType
	for _, ch := range implicated {
		if ch == domain.ChannelWireless {
			actions = append(actions, m.fire(domain.ActionDisconnect, fresh || entering)...)
			break
		}
	}
	actions = append(actions, m.fire(domain.ActionLockdown, fresh || entering)...)
	if p.IsolateOnDefense {
		actions = append(actions, m.fire(domain.ActionIsolate, fresh || entering)...)
	}
	return actions
}

func (m *Machine) fire(action domain.ActionType, force bool) []domain.ActionType {
	if m.fired[action] && !force {
		return nil
	}
	m.fired[action] = true
	return []domain.ActionType{action}
}

func (m *Machine) newlyImplicated(channels []domain.Channel) bool {
	fresh := false
	for _, ch := range channels {
		if !m.implicated[ch] {
			m.implicated[ch] = true
			fresh = true
		}
	}
	return fresh
}

// defenseTrigger checks rule 1: a critical identity/transport channel or the smoothed score above threshold.
func defenseTrigger(p Params, risk domain.GlobalRiskState) ([]domain.Channel, bool) {
	var classHit []domain.Channel
	for _, ch := range risk.CriticalChannels() {
		if ch.IsCriticalClass() {
			classHit = append(classHit, ch)
		}
	}
	if len(classHit) > 0 {
		return classHit, true
	}
	if risk.SmoothedScore <= p.DefenseThreshold {
		return nil, false
	}
	if critical := risk.CriticalChannels(); len(critical) > 0 {
		return critical, true
	}
	if top, ok := risk.TopContributor(); ok {
		return []domain.Channel{top}, true
	}
	return nil, true
}

func elevatedChannels(risk domain.GlobalRiskState) []domain.Channel {
	if chs := risk.ElevatedChannels(); len(chs) > 0 {
		return chs
	}
	if top, ok := risk.TopContributor(); ok {
		return []domain.Channel{top}
	}
	return nil
}

func hasCriticalClass(risk domain.GlobalRiskState, channels []domain.Channel) bool {
	for _, ch := range channels {
		if ch.IsCriticalClass() && risk.LastScores[ch].IsCritical() {
			return true
		}
	}
	return false
}

// raiseFor describes the channel alone; the fused risk belongs to the decision.
func raiseFor(risk domain.GlobalRiskState, ch domain.Channel, sev domain.Severity) Raise {
	vs := risk.LastScores[ch]
	return Raise{
		Channel:     ch,
		Severity:    sev,
		Description: fmt.Sprintf("%s anomaly (score %.2f)", ch.Label(), vs.Score),
		Evidence:    append([]string(nil), vs.Evidence...),
	}
}

func dwell(p Params) int {
	if p.DwellTicks < 1 {
		return 1
	}
	return p.DwellTicks
}
