// Package ledger holds the two write paths of the check-in core: the
// attendance counter and the one-shot guest-pass redemption. Both are
// short transactions designed to be safe under many concurrent callers.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/aforo/aforo/internal/broadcast"
	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/repo/postgres"
	"github.com/aforo/aforo/pkg/logger"
)

type AttendanceLedger interface {
	// Increment applies a signed delta to a reservation's attendance.
	// idempotencyKey guards the retry of this one confirmation; it does
	// not deduplicate separate scans, which are legitimate new
	// increments.
	Increment(ctx context.Context, tenantID, reservationID string, delta int, idempotencyKey string) (*domain.AttendanceResult, error)
}

type attendanceLedger struct {
	reservations   postgres.ReservationRepo
	idempotency    postgres.IdempotencyRepo
	broadcaster    *broadcast.Broadcaster
	idempotencyTTL time.Duration
}

func NewAttendanceLedger(
	reservations postgres.ReservationRepo,
	idempotency postgres.IdempotencyRepo,
	broadcaster *broadcast.Broadcaster,
	idempotencyTTL time.Duration,
) AttendanceLedger {
	return &attendanceLedger{
		reservations:   reservations,
		idempotency:    idempotency,
		broadcaster:    broadcaster,
		idempotencyTTL: idempotencyTTL,
	}
}

func (l *attendanceLedger) Increment(ctx context.Context, tenantID, reservationID string, delta int, idempotencyKey string) (*domain.AttendanceResult, error) {
	if delta == 0 || delta < -domain.MaxDelta || delta > domain.MaxDelta {
		return nil, fmt.Errorf("delta must be within ±%d and non-zero: %w", domain.MaxDelta, domain.ErrInvalidStateTransition)
	}

	// The key is claimed before the delta is applied. A replayed
	// confirmation loses the claim and returns the originally applied
	// result; a replay racing the original sees an unfinished claim and
	// gets a retryable conflict instead of a second application.
	if idempotencyKey != "" {
		won, stored, err := l.idempotency.Reserve(ctx, idempotencyKey, l.idempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("idempotency reserve failed: %w", err)
		}
		if !won {
			if stored == nil {
				return nil, domain.ErrConcurrencyConflict
			}
			logger.InfoContext(ctx, "Replaying idempotent increment",
				"reservation_id", stored.ReservationID)
			return stored, nil
		}
	}

	result, err := l.reservations.IncrementAttendance(ctx, tenantID, reservationID, delta, actorFrom(ctx))
	if err != nil {
		if idempotencyKey != "" {
			if relErr := l.idempotency.Release(ctx, idempotencyKey); relErr != nil {
				logger.ErrorContext(ctx, "Failed to release idempotency claim",
					"error", relErr, "reservation_id", reservationID)
			}
		}
		return nil, err
	}

	if idempotencyKey != "" {
		if err := l.idempotency.Complete(ctx, idempotencyKey, result); err != nil {
			// The delta is applied but the record is not; the claim stays
			// held, so a retry conflicts instead of re-applying.
			return nil, fmt.Errorf("idempotency record failed after apply: %w", err)
		}
	}

	// Only successful mutations are ever broadcast.
	l.broadcaster.AttendanceChanged(ctx, tenantID, result)

	logger.InfoContext(ctx, "Attendance incremented",
		"reservation_id", reservationID,
		"delta", delta,
		"attendance_count", result.AttendanceCount,
		"excess", result.Excess,
		"status", result.Status,
	)

	return result, nil
}

func actorFrom(ctx context.Context) string {
	if v := ctx.Value(logger.DeviceIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "scanner"
}
