package policy

import (
	"testing"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

func riskState(smoothed float64, scores ...domain.VectorScore) domain.GlobalRiskState {
	st := domain.GlobalRiskState{
		DeviceID:      "dev-1",
		SmoothedScore: smoothed,
		LastScores:    make(map[domain.Channel]domain.VectorScore),
		Contributions: make(map[domain.Channel]float64),
	}
	for _, vs := range scores {
		st.LastScores[vs.Channel] = vs
		st.Contributions[vs.Channel] = vs.Score * 10
	}
	return st
}

func vs(ch domain.Channel, score float64, status domain.VectorStatus) domain.VectorScore {
	return domain.NewVectorScore(ch, "dev-1", score, status, at, "note")
}

func TestMachine_BaselineStaysSecure(t *testing.T) {
	m := NewMachine()
	out := m.Evaluate(DefaultParams(), riskState(0,
		vs(domain.ChannelWireless, 0, domain.StatusSafe),
		vs(domain.ChannelTransport, 0, domain.StatusSafe),
		vs(domain.ChannelTraffic, 0, domain.StatusSafe),
		vs(domain.ChannelAppRisk, 0, domain.StatusSafe),
	))

	assert.Equal(t, domain.StateSecure, out.State)
	assert.Equal(t, domain.RuleSecure, out.Rule)
	assert.Empty(t, out.Actions)
	assert.Empty(t, out.Raises)
	assert.True(t, out.Record, "full audit records unchanged ticks")
}

func TestMachine_CriticalIdentityForcesDefense(t *testing.T) {
	m := NewMachine()
	out := m.Evaluate(DefaultParams(), riskState(7.5, vs(domain.ChannelWireless, 0.9, domain.StatusCritical)))

	assert.Equal(t, domain.StateDefenseActive, out.State)
	assert.Equal(t, domain.RuleCriticalVector, out.Rule)
	assert.Equal(t, []domain.ActionType{domain.ActionDisconnect, domain.ActionLockdown}, out.Actions)
	require.Len(t, out.Raises, 1)
	assert.Equal(t, domain.ChannelWireless, out.Raises[0].Channel)
	assert.Equal(t, domain.SeverityCritical, out.Raises[0].Severity)
	assert.Equal(t, []string{"note"}, out.Raises[0].Evidence)
}

func TestMachine_CriticalAppRiskAloneNeedsGlobalScore(t *testing.T) {
	m := NewMachine()
	out := m.Evaluate(DefaultParams(), riskState(12, vs(domain.ChannelAppRisk, 1, domain.StatusCritical)))
	assert.Equal(t, domain.StateSecure, out.State)

	out = m.Evaluate(DefaultParams(), riskState(85, vs(domain.ChannelAppRisk, 1, domain.StatusCritical)))
	assert.Equal(t, domain.StateDefenseActive, out.State)
	assert.Equal(t, domain.RuleGlobalRisk, out.Rule)
	assert.Equal(t, []domain.ActionType{domain.ActionLockdown}, out.Actions)
	require.Len(t, out.Raises, 1)
	assert.Equal(t, domain.ChannelAppRisk, out.Raises[0].Channel)
}

func TestMachine_ElevatedSeverityScalesWithScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  domain.Severity
	}{
		{"medium", 55, domain.SeverityMedium},
		{"high", 70, domain.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			out := m.Evaluate(DefaultParams(), riskState(tt.score, vs(domain.ChannelTraffic, 0.6, domain.StatusWarning)))
			assert.Equal(t, domain.StateElevated, out.State)
			assert.Equal(t, []domain.ActionType{domain.ActionNotify}, out.Actions)
			require.Len(t, out.Raises, 1)
			assert.Equal(t, tt.want, out.Raises[0].Severity)
		})
	}
}

func TestMachine_ActionsFireOncePerEpisode(t *testing.T) {
	m := NewMachine()
	p := DefaultParams()
	wireless := vs(domain.ChannelWireless, 0.9, domain.StatusCritical)

	first := m.Evaluate(p, riskState(10, wireless))
	second := m.Evaluate(p, riskState(18, wireless))
	assert.NotEmpty(t, first.Actions)
	assert.Empty(t, second.Actions)
	assert.Len(t, second.Raises, 1, "raises are repeated and deduplicated by the store")

	third := m.Evaluate(p, riskState(25, wireless, vs(domain.ChannelTransport, 0.8, domain.StatusCritical)))
	assert.Equal(t, []domain.ActionType{domain.ActionDisconnect, domain.ActionLockdown}, third.Actions)
}

func TestMachine_IsolateOnDefense(t *testing.T) {
	p := DefaultParams()
	p.IsolateOnDefense = true
	m := NewMachine()
	wireless := vs(domain.ChannelWireless, 0.9, domain.StatusCritical)

	out := m.Evaluate(p, riskState(10, wireless))
	assert.Equal(t, []domain.ActionType{domain.ActionDisconnect, domain.ActionLockdown, domain.ActionIsolate}, out.Actions)

	again := m.Evaluate(p, riskState(18, wireless))
	assert.Empty(t, again.Actions)

	_, err := m.Override(p, domain.ActionIsolate)
	assert.ErrorIs(t, err, domain.ErrInvalidOverride, "isolation is only reachable through the defense rule")
}

func TestMachine_HysteresisDwell(t *testing.T) {
	m := NewMachine()
	p := DefaultParams()

	m.Evaluate(p, riskState(85, vs(domain.ChannelTransport, 0.9, domain.StatusCritical)))
	require.Equal(t, domain.StateDefenseActive, m.State())

	calm := riskState(25, vs(domain.ChannelTransport, 0.1, domain.StatusSafe))
	for i := 1; i < p.DwellTicks; i++ {
		out := m.Evaluate(p, calm)
		assert.Equal(t, domain.StateDefenseActive, out.State, "tick %d", i)
		assert.Equal(t, domain.RuleHysteresisHold, out.Rule)
		assert.Nil(t, out.Resolve)
	}

	out := m.Evaluate(p, calm)
	assert.Equal(t, domain.StateSecure, out.State)
	assert.Equal(t, domain.RuleDwellRelease, out.Rule)
	require.NotNil(t, out.Resolve)
	assert.True(t, out.Resolve.KeepCritical)
	assert.Empty(t, out.Resolve.KeepChannels)
}

func TestMachine_DwellCounterResetsOnRelapse(t *testing.T) {
	m := NewMachine()
	p := DefaultParams()
	m.Evaluate(p, riskState(60, vs(domain.ChannelTraffic, 0.6, domain.StatusWarning)))

	m.Evaluate(p, riskState(20))
	m.Evaluate(p, riskState(20))
	out := m.Evaluate(p, riskState(40))
	assert.Equal(t, domain.StateElevated, out.State)
	assert.Equal(t, domain.RuleHysteresisHold, out.Rule)

	m.Evaluate(p, riskState(20))
	m.Evaluate(p, riskState(20))
	out = m.Evaluate(p, riskState(20))
	assert.Equal(t, domain.StateSecure, out.State)
}

func TestMachine_DefenseStepsDownThroughElevated(t *testing.T) {
	m := NewMachine()
	p := DefaultParams()
	m.Evaluate(p, riskState(90, vs(domain.ChannelTraffic, 1, domain.StatusCritical)))

	warm := riskState(60, vs(domain.ChannelTraffic, 0.6, domain.StatusWarning))
	m.Evaluate(p, warm)
	m.Evaluate(p, warm)
	out := m.Evaluate(p, warm)
	assert.Equal(t, domain.StateElevated, out.State)
	assert.Equal(t, domain.RuleElevatedRisk, out.Rule)
	assert.Empty(t, out.Actions, "no notify when stepping down")
}

func TestMachine_FullAuditDisabled(t *testing.T) {
	m := NewMachine()
	p := DefaultParams()
	p.FullAudit = false

	out := m.Evaluate(p, riskState(0))
	assert.False(t, out.Record)

	out = m.Evaluate(p, riskState(60, vs(domain.ChannelTraffic, 0.6, domain.StatusWarning)))
	assert.True(t, out.Record)
}

func TestMachine_Override(t *testing.T) {
	t.Run("reset from defense", func(t *testing.T) {
		m := NewMachine()
		p := DefaultParams()
		m.Evaluate(p, riskState(10, vs(domain.ChannelWireless, 0.9, domain.StatusCritical)))

		out, err := m.Override(p, domain.ActionReset)
		require.NoError(t, err)
		assert.Equal(t, domain.StateDefenseActive, out.Previous)
		assert.Equal(t, domain.StateSecure, out.State)
		assert.Equal(t, domain.RuleManualOverride, out.Rule)
		assert.Equal(t, []domain.ActionType{domain.ActionReset}, out.Actions)
		require.NotNil(t, out.Resolve)
		assert.True(t, out.Resolve.KeepCritical)
	})

	t.Run("lockdown from secure", func(t *testing.T) {
		m := NewMachine()
		out, err := m.Override(DefaultParams(), domain.ActionLockdown)
		require.NoError(t, err)
		assert.Equal(t, domain.StateDefenseActive, out.State)
		assert.Nil(t, out.Resolve)
	})

	t.Run("other actions rejected", func(t *testing.T) {
		m := NewMachine()
		_, err := m.Override(DefaultParams(), domain.ActionDisconnect)
		assert.ErrorIs(t, err, domain.ErrInvalidOverride)
		assert.Equal(t, domain.StateSecure, m.State())
	})
}

func TestMachine_ReleaseKeepsStillCriticalChannels(t *testing.T) {
	m := NewMachine()
	p := DefaultParams()
	p.DwellTicks = 1
	p.AutoResolveCritical = true

	m.Evaluate(p, riskState(60, vs(domain.ChannelAppRisk, 0.9, domain.StatusCritical)))
	out := m.Evaluate(p, riskState(10, vs(domain.ChannelAppRisk, 0.9, domain.StatusCritical)))

	require.NotNil(t, out.Resolve)
	assert.Equal(t, []domain.Channel{domain.ChannelAppRisk}, out.Resolve.KeepChannels)
	assert.False(t, out.Resolve.KeepCritical)
}
