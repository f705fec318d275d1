package notify

import (
	"context"

	"github.com/aforo/aforo/internal/domain"
)

// Notifier is the delivery boundary. How a message physically reaches the
// customer is someone else's problem; callers only hand over the facts.
type Notifier interface {
	SendReservationCreated(ctx context.Context, res *domain.Reservation) error
	SendReservationCancelled(ctx context.Context, res *domain.Reservation) error
}
