package correlator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

type notification struct {
	event    *domain.ThreatEvent
	decision *domain.PolicyDecision
}

// notifier forwards events and decisions to the publisher from one goroutine,
// keeping their order and never blocking a tick. When the buffer is full the
// notification is dropped.
type notifier struct {
	pub  ports.EventPublisher
	ch   chan notification
	once sync.Once
}

func newNotifier(pub ports.EventPublisher, buffer int) *notifier {
	return &notifier{pub: pub, ch: make(chan notification, buffer)}
}

func (n *notifier) start(ctx context.Context) {
	if n.pub == nil {
		return
	}
	n.once.Do(func() {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-n.ch:
					n.send(ctx, msg)
				}
			}
		}()
	})
}

func (n *notifier) send(ctx context.Context, msg notification) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var err error
	switch {
	case msg.event != nil:
		err = n.pub.PublishEvent(ctx, *msg.event)
	case msg.decision != nil:
		err = n.pub.PublishDecision(ctx, *msg.decision)
	}
	if err != nil {
		slog.Warn("failed to publish notification", "error", err)
	}
}

func (n *notifier) event(ev domain.ThreatEvent) {
	n.push(notification{event: &ev})
}

func (n *notifier) decision(d domain.PolicyDecision) {
	n.push(notification{decision: &d})
}

func (n *notifier) push(msg notification) {
	if n.pub == nil {
		return
	}
	select {
	case n.ch <- msg:
	default:
		slog.Warn("notification buffer full, dropping")
	}
}
