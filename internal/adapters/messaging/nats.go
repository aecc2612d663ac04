// Package messaging connects the engine to a NATS bus: telemetry comes in on
// mids.telemetry.>, threat events and decisions go out per device.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"github.com/nats-io/nats.go"
)

const (
	TelemetrySubject      = "mids.telemetry.>"
	EventSubjectPrefix    = "mids.events"
	DecisionSubjectPrefix = "mids.decisions"
)

// Connect dials the bus and keeps reconnecting for as long as the process runs.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("mids"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// EnvelopeHandler decodes and ingests one raw telemetry envelope.
type EnvelopeHandler interface {
	Handle(ctx context.Context, transport string, raw []byte) (domain.ChannelSnapshot, error)
}

// Subscriber is the subset of *nats.Conn used to receive telemetry.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type ack struct {
	Accepted bool   `json:"accepted"`
	DeviceID string `json:"device_id,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TelemetrySubscriber feeds bus telemetry into the engine. Producers that send
// with a reply subject receive an ack.
type TelemetrySubscriber struct {
	conn    Subscriber
	handler EnvelopeHandler
	logger  *slog.Logger
	ctx     context.Context
	sub     *nats.Subscription
}

func NewTelemetrySubscriber(conn Subscriber, handler EnvelopeHandler, logger *slog.Logger) *TelemetrySubscriber {
	return &TelemetrySubscriber{conn: conn, handler: handler, logger: logger, ctx: context.Background()}
}

// Start subscribes to the telemetry subject. Messages are handled until ctx
// is cancelled or Stop is called.
func (s *TelemetrySubscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	sub, err := s.conn.Subscribe(TelemetrySubject, s.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TelemetrySubject, err)
	}
	s.sub = sub
	s.logger.Info("Subscribed to telemetry", "subject", TelemetrySubject)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop drains the subscription.
func (s *TelemetrySubscriber) Stop() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		s.logger.Warn("failed to unsubscribe telemetry", "error", err)
	}
}

func (s *TelemetrySubscriber) handleMessage(msg *nats.Msg) {
	reply := s.process(msg.Data)
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		s.logger.Debug("failed to ack telemetry", "subject", msg.Subject, "error", err)
	}
}

func (s *TelemetrySubscriber) process(data []byte) ack {
	snap, err := s.handler.Handle(s.ctx, "nats", data)
	if err != nil {
		s.logger.Debug("telemetry rejected", "error", err)
		return ack{Error: err.Error()}
	}
	return ack{Accepted: true, DeviceID: snap.DeviceID, Channel: string(snap.Channel)}
}

// Conn is the subset of *nats.Conn used to publish.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher broadcasts threat events and decisions on per-device subjects.
type Publisher struct {
	conn Conn
}

var _ ports.EventPublisher = (*Publisher)(nil)

func NewPublisher(conn Conn) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) PublishEvent(_ context.Context, event domain.ThreatEvent) error {
	return p.publish(EventSubjectPrefix+"."+event.DeviceID, event)
}

func (p *Publisher) PublishDecision(_ context.Context, decision domain.PolicyDecision) error {
	return p.publish(DecisionSubjectPrefix+"."+decision.DeviceID, decision)
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}
