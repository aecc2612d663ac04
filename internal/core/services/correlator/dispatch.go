package correlator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/telemetry"
)

// dispatchTracker remembers requests until the dispatcher reports a final outcome.
type dispatchTracker struct {
	mu      sync.Mutex
	pending map[string]domain.DispatchRequest
}

func newDispatchTracker() *dispatchTracker {
	return &dispatchTracker{pending: make(map[string]domain.DispatchRequest)}
}

func (t *dispatchTracker) add(req domain.DispatchRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[req.ID] = req
}

func (t *dispatchTracker) get(id string) (domain.DispatchRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.pending[id]
	return req, ok
}

func (t *dispatchTracker) done(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}

func (t *dispatchTracker) list() []domain.DispatchRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.DispatchRequest, 0, len(t.pending))
	for _, req := range t.pending {
		out = append(out, req)
	}
	return out
}

// dispatch hands one action to the dispatcher without blocking the caller.
// The outcome is applied to the decision as an annotation.
func (e *Engine) dispatch(d domain.PolicyDecision, action domain.ActionType, timeout time.Duration) domain.DispatchRequest {
	req := domain.DispatchRequest{
		ID:         uuid.New().String(),
		DecisionID: d.ID,
		DeviceID:   d.DeviceID,
		Action:     action,
		Reason:     d.Rationale,
		IssuedAt:   e.clock(),
	}
	e.dispatches.add(req)

	if e.dispatcher == nil {
		e.applyDispatchOutcome(req, domain.DispatchOutcome{
			DispatchID: req.ID,
			Status:     domain.DispatchFailed,
			Reason:     "no dispatcher configured",
			At:         e.clock(),
		})
		return req
	}

	e.mu.RLock()
	parent := e.runCtx
	e.mu.RUnlock()

	e.goTracked(func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		result := make(chan domain.DispatchOutcome, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("dispatcher panicked", "dispatch", req.ID, "panic", r)
					result <- domain.DispatchOutcome{DispatchID: req.ID, Status: domain.DispatchFailed, Reason: "dispatcher panic"}
				}
			}()
			result <- e.dispatcher.Dispatch(ctx, req)
		}()

		var out domain.DispatchOutcome
		select {
		case out = <-result:
		case <-ctx.Done():
			out = domain.DispatchOutcome{Status: domain.DispatchFailed, Reason: "dispatch timed out: " + ctx.Err().Error()}
		}
		out.DispatchID = req.ID
		if out.At.IsZero() {
			out.At = e.clock()
		}
		e.applyDispatchOutcome(req, out)
	})
	return req
}

func (e *Engine) applyDispatchOutcome(req domain.DispatchRequest, out domain.DispatchOutcome) {
	telemetry.DispatchOutcomes.WithLabelValues(string(req.Action), string(out.Status)).Inc()

	ann := domain.Annotation{
		Kind:       domain.AnnotationDispatch,
		DispatchID: req.ID,
		Action:     req.Action,
		Status:     out.Status,
		Message:    out.Reason,
		At:         out.At,
	}
	d, err := e.decisions.Annotate(req.DecisionID, ann)
	if err != nil {
		slog.Error("failed to annotate decision with dispatch outcome", "decision", req.DecisionID, "dispatch", req.ID, "error", err)
	} else {
		e.notify.decision(d)
	}

	switch out.Status {
	case domain.DispatchFailed:
		slog.Error("protective action not confirmed", "device", req.DeviceID, "action", req.Action, "dispatch", req.ID, "reason", out.Reason, "error", domain.ErrDispatchFailure)
	default:
		slog.Info("protective action dispatched", "device", req.DeviceID, "action", req.Action, "dispatch", req.ID, "status", out.Status)
	}

	if out.Status.Final() {
		e.dispatches.done(req.ID)
	}
}

// ReportCompletion applies a late outcome reported by the dispatcher.
func (e *Engine) ReportCompletion(ctx context.Context, out domain.DispatchOutcome) error {
	req, ok := e.dispatches.get(out.DispatchID)
	if !ok {
		return domain.ErrDispatchNotFound
	}
	if out.At.IsZero() {
		out.At = e.clock()
	}
	e.applyDispatchOutcome(req, out)
	return nil
}

// PendingDispatches lists actions still awaiting a final outcome.
func (e *Engine) PendingDispatches() []domain.DispatchRequest {
	return e.dispatches.list()
}
