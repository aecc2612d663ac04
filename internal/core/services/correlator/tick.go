package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"github.com/lcalzada-xor/mids/internal/core/services/policy"
	"github.com/lcalzada-xor/mids/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TickResult describes what one evaluation did.
type TickResult struct {
	Risk       domain.GlobalRiskState
	State      domain.PolicyState
	Decision   domain.PolicyDecision
	Recorded   bool
	Raised     []domain.ThreatEvent
	Resolved   []domain.ThreatEvent
	Dispatched []domain.DispatchRequest
	TimedOut   []domain.Channel
}

// Tick evaluates one device: score the snapshots received since the last tick,
// fuse, run the policy and apply its outcome. Ticks of one device are serialized.
func (e *Engine) Tick(ctx context.Context, deviceID string) (TickResult, error) {
	dev, err := e.lookup(deviceID)
	if err != nil {
		return TickResult{}, err
	}

	ctx, span := telemetry.Tracer.Start(ctx, "correlator.Tick", trace.WithAttributes(attribute.String("device.id", deviceID)))
	defer span.End()

	settings := e.Settings()
	e.mu.RLock()
	scorers := e.scorers
	e.mu.RUnlock()

	dev.mu.Lock()
	defer dev.mu.Unlock()

	now := e.clock()
	snaps := make([]domain.ChannelSnapshot, 0, len(dev.pending))
	for _, ch := range domain.AllChannels {
		if snap, ok := dev.pending[ch]; ok {
			snaps = append(snaps, snap)
		}
	}
	dev.pending = make(map[domain.Channel]domain.ChannelSnapshot)

	prof := e.profiles.Ensure(deviceID)
	fresh, timedOut := scoreAll(scorers, prof, snaps, settings.Runtime.ScorerTimeout)
	degraded := len(timedOut) > 0
	for _, ch := range timedOut {
		telemetry.ScorerTimeouts.WithLabelValues(string(ch)).Inc()
	}
	if degraded {
		slog.Warn("tick degraded, reusing last known scores", "device", deviceID, "channels", timedOut, "error", domain.ErrDegradedTick)
	}

	risk := e.agg.Update(deviceID, fresh, degraded, now)
	out := dev.machine.Evaluate(settings.Policy, risk)
	span.SetAttributes(
		attribute.Float64("risk.smoothed", risk.SmoothedScore),
		attribute.String("policy.state", string(out.State)),
		attribute.String("policy.rule", out.Rule),
	)

	res := TickResult{Risk: risk, State: out.State, TimedOut: timedOut}
	e.applyOutcome(ctx, deviceID, risk, out, "", &res)

	scoreMap := make(map[domain.Channel]domain.VectorScore, len(fresh))
	for _, vs := range fresh {
		scoreMap[vs.Channel] = vs
	}
	e.profiles.Adapt(deviceID, out.State, snaps, scoreMap, now)

	telemetry.GlobalRisk.WithLabelValues(deviceID).Set(risk.SmoothedScore)
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	telemetry.TicksTotal.WithLabelValues(outcome).Inc()

	e.storeRisk(deviceID, risk, out.State)
	return res, nil
}

// applyOutcome writes events, records the decision and dispatches actions.
// Dispatch is attempted regardless of store health. Caller holds the device lock.
func (e *Engine) applyOutcome(ctx context.Context, deviceID string, risk domain.GlobalRiskState, out policy.Outcome, actor string, res *TickResult) {
	settings := e.Settings()

	for _, r := range out.Raises {
		ev, created, err := e.events.Raise(deviceID, r.Channel, r.Severity, r.Description, r.Evidence)
		if err != nil {
			slog.Error("failed to raise threat event", "device", deviceID, "channel", r.Channel, "error", err)
			continue
		}
		res.Raised = append(res.Raised, ev)
		if created {
			telemetry.EventsRaised.WithLabelValues(string(ev.Channel), string(ev.Severity)).Inc()
			e.notify.event(ev)
			if ev.Severity == domain.SeverityCritical && settings.Runtime.AutoExplainCritical {
				e.explainAsync(ev.ID, settings.Runtime.ExplainTimeout)
			}
		}
	}

	if out.Resolve != nil {
		who, note := "policy", out.Rule
		if actor != "" {
			who = actor
		}
		resolved := e.events.ResolveOpen(deviceID, out.Resolve.KeepChannels, out.Resolve.KeepCritical, who, note)
		for _, ev := range resolved {
			e.notify.event(ev)
		}
		res.Resolved = append(res.Resolved, resolved...)
	}

	if out.Changed() {
		telemetry.StateTransitions.WithLabelValues(string(out.Previous), string(out.State), out.Rule).Inc()
		slog.Info("policy state changed", "device", deviceID, "from", out.Previous, "to", out.State, "rule", out.Rule, "risk", risk.SmoothedScore)
	}

	if !out.Record {
		return
	}
	d := e.decisions.Append(domain.PolicyDecision{
		DeviceID:      deviceID,
		GlobalRisk:    risk.SmoothedScore,
		RawRisk:       risk.RawScore,
		PreviousState: out.Previous,
		State:         out.State,
		Actions:       out.Actions,
		Rationale:     out.Rule,
		Implicated:    out.Implicated,
		Actor:         actor,
		Degraded:      risk.Degraded,
		Timestamp:     e.clock(),
	})
	res.Decision, res.Recorded = d, true
	if d.DurabilityDegraded {
		slog.Warn("decision recorded in memory only, store unavailable", "decision", d.ID, "device", deviceID, "error", domain.ErrStoreWrite)
	}
	e.notify.decision(d)

	for _, action := range out.Actions {
		res.Dispatched = append(res.Dispatched, e.dispatch(d, action, settings.Runtime.DispatchTimeout))
	}
}

// scoreAll runs scorers in parallel. Scorers that miss the deadline are reported
// and their late results discarded.
func scoreAll(scorers map[domain.Channel]ports.VectorScorer, prof *domain.DeviceProfile, snaps []domain.ChannelSnapshot, timeout time.Duration) ([]domain.VectorScore, []domain.Channel) {
	if len(snaps) == 0 {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = DefaultRuntime().ScorerTimeout
	}

	results := make(chan domain.VectorScore, len(snaps))
	expected := 0
	for _, snap := range snaps {
		sc, ok := scorers[snap.Channel]
		if !ok {
			continue
		}
		expected++
		go func(sc ports.VectorScorer, snap domain.ChannelSnapshot) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("scorer panicked", "channel", snap.Channel, "device", snap.DeviceID, "panic", r)
					results <- domain.InsufficientScore(snap.Channel, snap.DeviceID, snap.ObservedAt, fmt.Sprintf("scorer failure: %v", r))
				}
			}()
			results <- sc.Score(prof.Clone(), snap)
		}(sc, snap)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	got := make(map[domain.Channel]domain.VectorScore, expected)
collect:
	for len(got) < expected {
		select {
		case vs := <-results:
			got[vs.Channel] = vs
		case <-timer.C:
			break collect
		}
	}

	var fresh []domain.VectorScore
	var timedOut []domain.Channel
	for _, snap := range snaps {
		if _, ok := scorers[snap.Channel]; !ok {
			continue
		}
		if vs, ok := got[snap.Channel]; ok {
			fresh = append(fresh, vs)
		} else {
			timedOut = append(timedOut, snap.Channel)
		}
	}
	return fresh, timedOut
}

func (e *Engine) storeRisk(deviceID string, risk domain.GlobalRiskState, state domain.PolicyState) {
	if e.riskSink == nil {
		return
	}
	prof := e.profiles.Get(deviceID)
	snapshot := domain.DeviceRiskSnapshot{
		Risk:         risk,
		State:        state,
		ActiveEvents: len(e.events.ListActive(deviceID)),
	}
	if prof != nil {
		snapshot.Confidence = prof.Confidence
	}
	timeout := e.Settings().Runtime.DispatchTimeout
	e.goTracked(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := e.riskSink.StoreRisk(ctx, snapshot); err != nil {
			slog.Warn("failed to publish risk snapshot", "device", deviceID, "error", err)
		}
	})
}
