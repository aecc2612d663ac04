package correlator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// Override forces LOCKDOWN or RESET on a device and records a manual_override decision.
// RESET also clears the fused score and resolves pending events that are not CRITICAL.
func (e *Engine) Override(ctx context.Context, deviceID string, action domain.ActionType, actor string) (domain.PolicyDecision, error) {
	if action != domain.ActionLockdown && action != domain.ActionReset {
		return domain.PolicyDecision{}, fmt.Errorf("%w: %s", domain.ErrInvalidOverride, action)
	}
	dev, err := e.lookup(deviceID)
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	if actor == "" {
		actor = "operator"
	}

	settings := e.Settings()
	dev.mu.Lock()
	defer dev.mu.Unlock()

	out, err := dev.machine.Override(settings.Policy, action)
	if err != nil {
		return domain.PolicyDecision{}, err
	}

	now := e.clock()
	risk, _ := e.agg.Snapshot(deviceID)
	if action == domain.ActionReset {
		risk = e.agg.Reset(deviceID, now)
		dev.pending = make(map[domain.Channel]domain.ChannelSnapshot)
		e.profiles.DecayConfidence(deviceID)
	}

	var res TickResult
	e.applyOutcome(ctx, deviceID, risk, out, actor, &res)
	e.storeRisk(deviceID, risk, out.State)

	slog.Info("manual override applied", "device", deviceID, "action", action, "actor", actor, "from", out.Previous, "to", out.State)
	return res.Decision, nil
}

// ResetAll applies RESET to every known device. Devices are handled one by one,
// each under its own lock.
func (e *Engine) ResetAll(ctx context.Context, actor string) ([]domain.PolicyDecision, error) {
	var (
		out  []domain.PolicyDecision
		errs []error
	)
	for _, id := range e.Devices() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		d, err := e.Override(ctx, id, domain.ActionReset, actor)
		if err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", id, err))
			continue
		}
		out = append(out, d)
	}
	return out, errors.Join(errs...)
}

// ResolveEvent closes an event on operator request.
func (e *Engine) ResolveEvent(ctx context.Context, id, actor string) (domain.ThreatEvent, error) {
	ev, err := e.events.Get(id)
	if err != nil {
		return domain.ThreatEvent{}, err
	}
	if actor == "" {
		actor = "operator"
	}

	if dev, err := e.lookup(ev.DeviceID); err == nil {
		dev.mu.Lock()
		defer dev.mu.Unlock()
	}

	resolved, err := e.events.Resolve(id, actor, "operator resolution")
	if err != nil {
		return resolved, err
	}
	e.notify.event(resolved)
	return resolved, nil
}

// ExplainEvent asks the enrichment service for a narrative. Without an explainer
// the event keeps only its machine-generated description.
func (e *Engine) ExplainEvent(ctx context.Context, id string) (domain.ThreatEvent, error) {
	if e.explainer == nil {
		ev, err := e.events.Get(id)
		if err != nil {
			return domain.ThreatEvent{}, err
		}
		return ev, domain.ErrExplainerUnavailable
	}
	return e.explain(ctx, id, "operator", e.Settings().Runtime.ExplainTimeout)
}

func (e *Engine) explain(ctx context.Context, id, actor string, timeout time.Duration) (domain.ThreatEvent, error) {
	ev, err := e.events.MarkAnalyzing(id, actor)
	if err != nil {
		return ev, err
	}
	e.notify.event(ev)

	if timeout <= 0 {
		timeout = DefaultRuntime().ExplainTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := e.explainer.Explain(ctx, ev)
	if err != nil {
		slog.Warn("event enrichment failed, keeping machine rationale", "event", id, "error", err)
		if back, rerr := e.events.Reactivate(id, actor, "enrichment failed"); rerr == nil {
			e.notify.event(back)
		}
		return ev, fmt.Errorf("explain event %s: %w", id, err)
	}

	updated, err := e.events.AttachNarrative(id, text)
	if err != nil {
		return updated, err
	}
	e.notify.event(updated)
	return updated, nil
}

// explainAsync enriches an event in the background; the decision path never waits for it.
func (e *Engine) explainAsync(id string, timeout time.Duration) {
	if e.explainer == nil {
		return
	}
	e.mu.RLock()
	parent := e.runCtx
	e.mu.RUnlock()
	e.goTracked(func() {
		if _, err := e.explain(parent, id, "auto", timeout); err != nil {
			slog.Debug("automatic enrichment skipped", "event", id, "error", err)
		}
	})
}

// EnrollTrustedNetwork sets the trusted wireless identity of a device and
// registers the device if it was not known yet.
func (e *Engine) EnrollTrustedNetwork(ctx context.Context, deviceID string, tn domain.TrustedNetwork) (domain.DeviceProfile, error) {
	if !domain.IsValidDeviceID(deviceID) {
		return domain.DeviceProfile{}, domain.ErrInvalidDeviceID
	}
	tn.Security = domain.ParseSecurityClass(string(tn.Security))

	dev := e.register(deviceID)
	dev.mu.Lock()
	p, err := e.profiles.SetTrustedNetwork(deviceID, tn, e.clock())
	dev.mu.Unlock()
	if err != nil {
		return domain.DeviceProfile{}, err
	}

	e.mu.RLock()
	runCtx, started := e.runCtx, e.started
	e.mu.RUnlock()
	if started {
		e.startLoop(runCtx, dev)
	}
	slog.Info("trusted network enrolled", "device", deviceID, "ssid", tn.SSID, "vendor", p.TrustedNetwork.VendorOUI)
	return p, nil
}
