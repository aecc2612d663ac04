package app

import (
	"context"
	"errors"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

// fanout publishes to every live consumer. A failing consumer does not stop
// delivery to the others.
type fanout []ports.EventPublisher

func (f fanout) PublishEvent(ctx context.Context, event domain.ThreatEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) PublishDecision(ctx context.Context, decision domain.PolicyDecision) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishDecision(ctx, decision); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
