package service

import (
	"context"
	"fmt"

	"github.com/aforo/aforo/internal/broadcast"
	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/notify"
	"github.com/aforo/aforo/internal/repo/postgres"
	"github.com/aforo/aforo/pkg/logger"
)

type ReservationService interface {
	Create(ctx context.Context, tenantID string, req *domain.ReservationCreateReq) (*domain.Reservation, error)
	Get(ctx context.Context, tenantID, id string) (*domain.Reservation, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]domain.Reservation, error)
	Update(ctx context.Context, tenantID, id string, patch domain.ReservationPatch) (*domain.Reservation, error)
	Cancel(ctx context.Context, tenantID, id string) (bool, error)
}

type reservationService struct {
	reservations postgres.ReservationRepo
	broadcaster  *broadcast.Broadcaster
	notifier     notify.Notifier
}

func NewReservationService(
	reservations postgres.ReservationRepo,
	broadcaster *broadcast.Broadcaster,
	notifier notify.Notifier,
) ReservationService {
	return &reservationService{
		reservations: reservations,
		broadcaster:  broadcaster,
		notifier:     notifier,
	}
}

func (s *reservationService) Create(ctx context.Context, tenantID string, req *domain.ReservationCreateReq) (*domain.Reservation, error) {
	if err := validateReservationRequest(req); err != nil {
		return nil, err
	}

	res, err := s.reservations.Create(ctx, tenantID, actorFrom(ctx), req)
	if err != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	s.broadcaster.ReservationChanged(ctx, tenantID, res.ID,
		[]string{"created"}, map[string]any{
			"customer_name": res.CustomerName,
			"reserved_at":   res.ReservedAt,
			"capacity":      res.Capacity,
			"status":        string(res.Status),
		})

	// Confirmation carries the QR the customer presents at the door.
	// Delivery failure never fails the booking.
	if err := s.notifier.SendReservationCreated(ctx, res); err != nil {
		logger.ErrorContext(ctx, "Failed to send reservation confirmation",
			"error", err, "reservation_id", res.ID)
	}

	return res, nil
}

func (s *reservationService) Get(ctx context.Context, tenantID, id string) (*domain.Reservation, error) {
	return s.reservations.GetByID(ctx, tenantID, id)
}

func (s *reservationService) List(ctx context.Context, tenantID string, limit, offset int) ([]domain.Reservation, error) {
	return s.reservations.List(ctx, tenantID, limit, offset)
}

func (s *reservationService) Update(ctx context.Context, tenantID, id string, patch domain.ReservationPatch) (*domain.Reservation, error) {
	existing, err := s.reservations.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if existing == nil {
		return nil, domain.ErrReservationNotFound
	}
	if existing.Status == domain.ReservationCancelled {
		return nil, domain.ErrInvalidStateTransition
	}

	if err := validateReservationPatch(patch); err != nil {
		return nil, err
	}

	updated, err := s.reservations.Update(ctx, tenantID, id, actorFrom(ctx), patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}
	if updated == nil {
		return nil, domain.ErrReservationNotFound
	}

	changes := detectChanges(existing, updated)
	if len(changes) > 0 {
		if patch.AttendanceCount != nil {
			logger.WarnContext(ctx, "Administrative attendance override",
				"reservation_id", id,
				"from", existing.AttendanceCount,
				"to", updated.AttendanceCount,
				"by", updated.LastModifiedBy,
			)
		}
		s.broadcaster.ReservationChanged(ctx, tenantID, id, changes, changedFieldValues(updated, changes))
	}

	return updated, nil
}

func (s *reservationService) Cancel(ctx context.Context, tenantID, id string) (bool, error) {
	// Soft transition only; attendance history stays queryable.
	ok, err := s.reservations.Cancel(ctx, tenantID, id, actorFrom(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to cancel reservation: %w", err)
	}
	if ok {
		s.broadcaster.ReservationChanged(ctx, tenantID, id,
			[]string{"status"}, map[string]any{"status": string(domain.ReservationCancelled)})
	}
	return ok, nil
}

func validateReservationRequest(req *domain.ReservationCreateReq) error {
	if req.CustomerName == "" {
		return fmt.Errorf("customer name is required")
	}
	if req.Capacity < domain.MinCapacity || req.Capacity > domain.MaxCapacity {
		return fmt.Errorf("capacity must be between %d and %d", domain.MinCapacity, domain.MaxCapacity)
	}
	if req.ReservedAt.IsZero() {
		return fmt.Errorf("reserved time is required")
	}
	return nil
}

func validateReservationPatch(patch domain.ReservationPatch) error {
	if patch.Capacity != nil && (*patch.Capacity < domain.MinCapacity || *patch.Capacity > domain.MaxCapacity) {
		return fmt.Errorf("capacity must be between %d and %d", domain.MinCapacity, domain.MaxCapacity)
	}
	if patch.CustomerName != nil && *patch.CustomerName == "" {
		return fmt.Errorf("customer name cannot be empty")
	}
	return nil
}

func detectChanges(old, new *domain.Reservation) []string {
	var changes []string

	if old.CustomerName != new.CustomerName {
		changes = append(changes, "customer_name")
	}
	if old.Phone != new.Phone {
		changes = append(changes, "phone")
	}
	if old.Email != new.Email {
		changes = append(changes, "email")
	}
	if !old.ReservedAt.Equal(new.ReservedAt) {
		changes = append(changes, "reserved_at")
	}
	if old.TableRef != new.TableRef {
		changes = append(changes, "table_ref")
	}
	if old.Capacity != new.Capacity {
		changes = append(changes, "capacity")
	}
	if old.Notes != new.Notes {
		changes = append(changes, "notes")
	}
	if old.AttendanceCount != new.AttendanceCount {
		changes = append(changes, "attendance_count")
	}
	if old.Status != new.Status {
		changes = append(changes, "status")
	}

	return changes
}

func changedFieldValues(res *domain.Reservation, changes []string) map[string]any {
	all := map[string]any{
		"customer_name":    res.CustomerName,
		"phone":            res.Phone,
		"email":            res.Email,
		"reserved_at":      res.ReservedAt,
		"table_ref":        res.TableRef,
		"capacity":         res.Capacity,
		"notes":            res.Notes,
		"attendance_count": res.AttendanceCount,
		"status":           string(res.Status),
	}
	fields := make(map[string]any, len(changes))
	for _, c := range changes {
		if v, ok := all[c]; ok {
			fields[c] = v
		}
	}
	return fields
}

func actorFrom(ctx context.Context) string {
	if v := ctx.Value(logger.DeviceIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "staff"
}
