package ports

import (
	"context"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// ActionDispatcher carries protective actions to the systems that enforce them.
// A failed delivery is reported in the outcome, never as a panic or a blocked call.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest) domain.DispatchOutcome
}
