package notify

import (
	"context"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/pkg/logger"
)

// DevNotifier logs instead of delivering. Used when EMAIL_DEV_MODE is on.
type DevNotifier struct{}

func NewDevNotifier() *DevNotifier { return &DevNotifier{} }

func (n *DevNotifier) SendReservationCreated(ctx context.Context, res *domain.Reservation) error {
	logger.InfoContext(ctx, "DEV notification: reservation created",
		"customer", res.CustomerName,
		"reserved_at", res.ReservedAt,
		"qr_token", res.QRToken,
	)
	return nil
}

func (n *DevNotifier) SendReservationCancelled(ctx context.Context, res *domain.Reservation) error {
	logger.InfoContext(ctx, "DEV notification: reservation cancelled",
		"customer", res.CustomerName,
		"reserved_at", res.ReservedAt,
	)
	return nil
}

var _ Notifier = (*DevNotifier)(nil)
