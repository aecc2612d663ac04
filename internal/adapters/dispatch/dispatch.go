// Package dispatch carries protective actions to the systems that enforce
// them: a NATS request/reply bus, the live websocket feed, or the log.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"github.com/nats-io/nats.go"
)

// ActionSubjectPrefix is the root of the per-action request subjects,
// for example "mids.actions.disconnect.phone-01".
const ActionSubjectPrefix = "mids.actions"

// Router sends each action to the dispatcher registered for it, falling back
// to a default when none is.
type Router struct {
	routes   map[domain.ActionType]ports.ActionDispatcher
	fallback ports.ActionDispatcher
}

var _ ports.ActionDispatcher = (*Router)(nil)

func NewRouter(fallback ports.ActionDispatcher) *Router {
	return &Router{routes: make(map[domain.ActionType]ports.ActionDispatcher), fallback: fallback}
}

// Route registers d for the given actions. Not safe for use after dispatch starts.
func (r *Router) Route(d ports.ActionDispatcher, actions ...domain.ActionType) *Router {
	for _, a := range actions {
		r.routes[a] = d
	}
	return r
}

func (r *Router) Dispatch(ctx context.Context, req domain.DispatchRequest) domain.DispatchOutcome {
	if d, ok := r.routes[req.Action]; ok {
		return d.Dispatch(ctx, req)
	}
	if r.fallback == nil {
		return failed(req, "no dispatcher for "+string(req.Action))
	}
	return r.fallback.Dispatch(ctx, req)
}

// LogDispatcher records actions in the log and reports them completed. Used
// when no enforcement system is attached.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (l *LogDispatcher) Dispatch(_ context.Context, req domain.DispatchRequest) domain.DispatchOutcome {
	l.logger.Warn("Protective action",
		"dispatch_id", req.ID,
		"device_id", req.DeviceID,
		"action", req.Action,
		"reason", req.Reason,
	)
	return domain.DispatchOutcome{DispatchID: req.ID, Status: domain.DispatchCompleted, At: time.Now().UTC()}
}

// Requester is the subset of *nats.Conn used for request/reply.
type Requester interface {
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
}

// NATSDispatcher sends each action as a request on the bus and waits for the
// enforcement agent's reply. Agents may answer "accepted" and report the
// final result later through the completion endpoint.
type NATSDispatcher struct {
	conn Requester
}

var _ ports.ActionDispatcher = (*NATSDispatcher)(nil)

func NewNATSDispatcher(conn Requester) *NATSDispatcher {
	return &NATSDispatcher{conn: conn}
}

type agentReply struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Subject returns the request subject for an action.
func Subject(req domain.DispatchRequest) string {
	return fmt.Sprintf("%s.%s.%s", ActionSubjectPrefix, strings.ToLower(string(req.Action)), req.DeviceID)
}

func (n *NATSDispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) domain.DispatchOutcome {
	data, err := json.Marshal(req)
	if err != nil {
		return failed(req, err.Error())
	}

	msg, err := n.conn.RequestWithContext(ctx, Subject(req), data)
	switch {
	case errors.Is(err, nats.ErrNoResponders):
		return failed(req, "no enforcement agent listening")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return failed(req, "enforcement agent timed out")
	case err != nil:
		return failed(req, err.Error())
	}

	var reply agentReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return failed(req, "malformed agent reply")
	}

	status := domain.DispatchStatus(strings.ToLower(reply.Status))
	switch status {
	case domain.DispatchAccepted, domain.DispatchCompleted, domain.DispatchFailed:
	default:
		return failed(req, fmt.Sprintf("unknown agent status %q", reply.Status))
	}
	return domain.DispatchOutcome{DispatchID: req.ID, Status: status, Reason: reply.Reason, At: time.Now().UTC()}
}

func failed(req domain.DispatchRequest, reason string) domain.DispatchOutcome {
	return domain.DispatchOutcome{DispatchID: req.ID, Status: domain.DispatchFailed, Reason: reason, At: time.Now().UTC()}
}
