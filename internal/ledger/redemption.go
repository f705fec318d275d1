package ledger

import (
	"context"
	"fmt"

	"github.com/aforo/aforo/internal/broadcast"
	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/repo/postgres"
	"github.com/aforo/aforo/pkg/logger"
)

type RedemptionLedger interface {
	// Redeem marks a guest pass used. Of two concurrent calls on the same
	// pass exactly one succeeds; the other gets an already-redeemed
	// outcome, which is information, not an error.
	Redeem(ctx context.Context, tenantID string, pass *domain.EventGuestPass) (*domain.RedemptionResult, error)
}

type redemptionLedger struct {
	passes      postgres.GuestPassRepo
	broadcaster *broadcast.Broadcaster
}

func NewRedemptionLedger(passes postgres.GuestPassRepo, broadcaster *broadcast.Broadcaster) RedemptionLedger {
	return &redemptionLedger{passes: passes, broadcaster: broadcaster}
}

func (l *redemptionLedger) Redeem(ctx context.Context, tenantID string, pass *domain.EventGuestPass) (*domain.RedemptionResult, error) {
	won, err := l.passes.Redeem(ctx, tenantID, pass.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to redeem guest pass: %w", err)
	}

	if !won {
		return &domain.RedemptionResult{
			Success:         false,
			AlreadyRedeemed: true,
			Message:         "pass already redeemed",
		}, nil
	}

	l.broadcaster.GuestPassRedeemed(ctx, tenantID, pass.ID, pass.GuestCount)

	logger.InfoContext(ctx, "Guest pass redeemed",
		"pass_id", pass.ID,
		"guest_name", pass.GuestName,
		"guest_count", pass.GuestCount,
	)

	return &domain.RedemptionResult{
		Success:    true,
		GuestName:  pass.GuestName,
		GuestCount: pass.GuestCount,
		Message:    fmt.Sprintf("admitted %d guest(s)", pass.GuestCount),
	}, nil
}
