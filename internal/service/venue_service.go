package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aforo/aforo/internal/broadcast"
	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/repo/postgres"
)

// VenueService covers the supporting door-side records: walk-ins, guest
// passes and promoters.
type VenueService interface {
	RecordWalkIn(ctx context.Context, tenantID string, req *domain.WalkInCreateReq) (*domain.WalkInRecord, error)
	ListWalkIns(ctx context.Context, tenantID string, limit, offset int) ([]domain.WalkInRecord, error)
	DeleteWalkIn(ctx context.Context, tenantID, id string) (bool, error)

	CreateGuestPass(ctx context.Context, tenantID string, req *domain.GuestPassCreateReq) (*domain.EventGuestPass, error)
	ListGuestPasses(ctx context.Context, tenantID string, limit, offset int) ([]domain.EventGuestPass, error)

	CreatePromoter(ctx context.Context, tenantID string, req *domain.PromoterCreateReq) (*domain.Promoter, error)
	ListPromoters(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Promoter, error)
	UpdatePromoter(ctx context.Context, tenantID, id string, patch domain.PromoterPatch) (*domain.Promoter, error)
	DeactivatePromoter(ctx context.Context, tenantID, id string) (bool, error)
}

type venueService struct {
	walkIns     postgres.WalkInRepo
	passes      postgres.GuestPassRepo
	promoters   postgres.PromoterRepo
	broadcaster *broadcast.Broadcaster
}

func NewVenueService(
	walkIns postgres.WalkInRepo,
	passes postgres.GuestPassRepo,
	promoters postgres.PromoterRepo,
	broadcaster *broadcast.Broadcaster,
) VenueService {
	return &venueService{
		walkIns:     walkIns,
		passes:      passes,
		promoters:   promoters,
		broadcaster: broadcaster,
	}
}

func (s *venueService) RecordWalkIn(ctx context.Context, tenantID string, req *domain.WalkInCreateReq) (*domain.WalkInRecord, error) {
	if req.PersonCount < 1 {
		return nil, fmt.Errorf("person count must be at least 1")
	}
	if req.OccurredAt.IsZero() {
		req.OccurredAt = time.Now()
	}
	if req.RecordedBy == "" {
		req.RecordedBy = actorFrom(ctx)
	}

	w, err := s.walkIns.Create(ctx, tenantID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to record walk-in: %w", err)
	}

	s.broadcaster.WalkInRecorded(ctx, tenantID, w.ID, w.PersonCount)
	return w, nil
}

func (s *venueService) ListWalkIns(ctx context.Context, tenantID string, limit, offset int) ([]domain.WalkInRecord, error) {
	return s.walkIns.List(ctx, tenantID, limit, offset)
}

func (s *venueService) DeleteWalkIn(ctx context.Context, tenantID, id string) (bool, error) {
	return s.walkIns.Delete(ctx, tenantID, id)
}

func (s *venueService) CreateGuestPass(ctx context.Context, tenantID string, req *domain.GuestPassCreateReq) (*domain.EventGuestPass, error) {
	if req.GuestName == "" {
		return nil, fmt.Errorf("guest name is required")
	}
	if req.GuestCount < domain.MinGuestCount || req.GuestCount > domain.MaxGuestCount {
		return nil, fmt.Errorf("guest count must be between %d and %d", domain.MinGuestCount, domain.MaxGuestCount)
	}

	return s.passes.Create(ctx, tenantID, req)
}

func (s *venueService) ListGuestPasses(ctx context.Context, tenantID string, limit, offset int) ([]domain.EventGuestPass, error) {
	return s.passes.List(ctx, tenantID, limit, offset)
}

func (s *venueService) CreatePromoter(ctx context.Context, tenantID string, req *domain.PromoterCreateReq) (*domain.Promoter, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("promoter name is required")
	}
	return s.promoters.Create(ctx, tenantID, req)
}

func (s *venueService) ListPromoters(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Promoter, error) {
	return s.promoters.List(ctx, tenantID, activeOnly)
}

func (s *venueService) UpdatePromoter(ctx context.Context, tenantID, id string, patch domain.PromoterPatch) (*domain.Promoter, error) {
	p, err := s.promoters.Update(ctx, tenantID, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update promoter: %w", err)
	}
	if p == nil {
		return nil, domain.ErrPromoterNotFound
	}
	return p, nil
}

func (s *venueService) DeactivatePromoter(ctx context.Context, tenantID, id string) (bool, error) {
	return s.promoters.Deactivate(ctx, tenantID, id)
}
