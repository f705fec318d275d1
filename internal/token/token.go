// Package token mints and resolves the opaque strings carried inside QR
// codes. A token is issued once, at entity creation, and is stable for the
// entity's lifetime: repeated scans of the same ticket resolve to the same
// entity. The string itself leaks nothing about what it points at.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aforo/aforo/internal/domain"
)

type Kind string

const (
	KindReservation Kind = "RESERVATION"
	KindEventGuest  Kind = "EVENT_GUEST"
)

// Resolution is the tagged union a scan produces: exactly one of
// Reservation or GuestPass is set, according to Kind.
type Resolution struct {
	Kind        Kind
	Reservation *domain.Reservation
	GuestPass   *domain.EventGuestPass
}

// ReservationLookup fetches a reservation by its QR token across all
// tenants; tenant enforcement happens here, not in the store.
type ReservationLookup interface {
	GetByToken(ctx context.Context, token string) (*domain.Reservation, error)
}

type GuestPassLookup interface {
	GetByToken(ctx context.Context, token string) (*domain.EventGuestPass, error)
}

type Service struct {
	reservations ReservationLookup
	passes       GuestPassLookup

	// Scan window for reservation tokens, relative to the reserved time.
	validBefore time.Duration
	validAfter  time.Duration

	now func() time.Time
}

func NewService(reservations ReservationLookup, passes GuestPassLookup, validBefore, validAfter time.Duration) *Service {
	return &Service{
		reservations: reservations,
		passes:       passes,
		validBefore:  validBefore,
		validAfter:   validAfter,
		now:          time.Now,
	}
}

// Issue mints a fresh opaque token. Callers store it on the entity row at
// creation time and never regenerate it.
func Issue() string {
	return uuid.NewString()
}

// Resolve turns a scanned string into a classified entity, enforcing that
// the entity belongs to tenantID. Order matters: malformed input is
// rejected before any lookup, and a cross-tenant hit fails closed before
// the validity window is consulted.
func (s *Service) Resolve(ctx context.Context, raw, tenantID string) (*Resolution, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return nil, domain.ErrTokenInvalid
	}

	res, err := s.reservations.GetByToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("resolve reservation token: %w", err)
	}
	if res != nil {
		if res.TenantID != tenantID {
			return nil, domain.ErrTenantMismatch
		}
		if err := s.checkWindow(res.ReservedAt); err != nil {
			return nil, err
		}
		return &Resolution{Kind: KindReservation, Reservation: res}, nil
	}

	pass, err := s.passes.GetByToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("resolve guest pass token: %w", err)
	}
	if pass != nil {
		if pass.TenantID != tenantID {
			return nil, domain.ErrTenantMismatch
		}
		return &Resolution{Kind: KindEventGuest, GuestPass: pass}, nil
	}

	return nil, domain.ErrTokenNotFound
}

func (s *Service) checkWindow(reservedAt time.Time) error {
	now := s.now()
	validFrom := reservedAt.Add(-s.validBefore)
	expiresAt := reservedAt.Add(s.validAfter)

	if now.Before(validFrom) {
		hours := int(validFrom.Sub(now).Hours()) + 1
		return fmt.Errorf("token not yet valid, becomes scannable in %dh: %w", hours, domain.ErrTokenNotFound)
	}
	if now.After(expiresAt) {
		return fmt.Errorf("token expired %s after reserved time: %w", s.validAfter, domain.ErrTokenNotFound)
	}
	return nil
}
