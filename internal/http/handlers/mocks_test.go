package handlers_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/token"
)

// ---------- Mocks ----------

type mockReservationStore struct {
	mu           sync.Mutex
	nextID       int
	reservations map[string]*domain.Reservation
}

func newMockReservationStore(reservations ...*domain.Reservation) *mockReservationStore {
	m := &mockReservationStore{nextID: 1, reservations: make(map[string]*domain.Reservation)}
	for _, r := range reservations {
		if r != nil {
			m.reservations[r.ID] = r
		}
	}
	return m
}

func (m *mockReservationStore) Create(_ context.Context, tenantID, actor string, in *domain.ReservationCreateReq) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := &domain.Reservation{
		ID:             fmt.Sprintf("res-%d", m.nextID),
		TenantID:       tenantID,
		CustomerName:   in.CustomerName,
		Phone:          in.Phone,
		Email:          in.Email,
		ReservedAt:     in.ReservedAt,
		TableRef:       in.TableRef,
		Capacity:       in.Capacity,
		PromoterID:     in.PromoterID,
		Status:         domain.ReservationPending,
		QRToken:        token.Issue(),
		Notes:          in.Notes,
		LastModifiedBy: actor,
		LastModifiedAt: time.Now(),
		CreatedAt:      time.Now(),
	}
	m.nextID++
	m.reservations[r.ID] = r
	return r, nil
}

func (m *mockReservationStore) GetByID(_ context.Context, tenantID, id string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || r.TenantID != tenantID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockReservationStore) GetByToken(_ context.Context, qrToken string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.QRToken == qrToken {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockReservationStore) List(_ context.Context, tenantID string, limit, offset int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.TenantID == tenantID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockReservationStore) ListByDateRange(_ context.Context, tenantID string, from, to time.Time) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.TenantID == tenantID && !r.ReservedAt.Before(from) && r.ReservedAt.Before(to) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockReservationStore) Update(_ context.Context, tenantID, id, actor string, patch domain.ReservationPatch) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok || r.TenantID != tenantID || r.Status == domain.ReservationCancelled {
		return nil, nil
	}
	if patch.CustomerName != nil {
		r.CustomerName = *patch.CustomerName
	}
	if patch.Phone != nil {
		r.Phone = *patch.Phone
	}
	if patch.Email != nil {
		r.Email = *patch.Email
	}
	if patch.ReservedAt != nil {
		r.ReservedAt = *patch.ReservedAt
	}
	if patch.TableRef != nil {
		r.TableRef = *patch.TableRef
	}
	if patch.Capacity != nil {
		r.Capacity = *patch.Capacity
	}
	if patch.Notes != nil {
		r.Notes = *patch.Notes
	}
	if patch.AttendanceCount != nil {
		r.AttendanceCount = *patch.AttendanceCount
	}
	r.Status = domain.NextStatus(r.Status, r.AttendanceCount, r.Capacity)
	r.LastModifiedBy = actor
	r.LastModifiedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *mockReservationStore) Cancel(_ context.Context, tenantID, id, actor string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || r.TenantID != tenantID || r.Status == domain.ReservationCancelled {
		return false, nil
	}
	r.Status = domain.ReservationCancelled
	r.LastModifiedBy = actor
	return true, nil
}

func (m *mockReservationStore) IncrementAttendance(_ context.Context, tenantID, id string, delta int, actor string) (*domain.AttendanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok || r.TenantID != tenantID {
		return nil, domain.ErrReservationNotFound
	}
	if !domain.CanIncrement(r.Status) {
		return nil, domain.ErrInvalidStateTransition
	}

	newCount := r.AttendanceCount + delta
	if newCount < 0 {
		newCount = 0
	}
	r.AttendanceCount = newCount
	r.Status = domain.NextStatus(r.Status, newCount, r.Capacity)
	r.LastModifiedBy = actor
	r.LastModifiedAt = time.Now()

	return &domain.AttendanceResult{
		ReservationID:   r.ID,
		AttendanceCount: r.AttendanceCount,
		Capacity:        r.Capacity,
		Excess:          r.Excess(),
		Status:          r.Status,
	}, nil
}

type mockGuestPassStore struct {
	mu     sync.Mutex
	passes map[string]*domain.EventGuestPass
}

func newMockGuestPassStore(passes ...*domain.EventGuestPass) *mockGuestPassStore {
	m := &mockGuestPassStore{passes: make(map[string]*domain.EventGuestPass)}
	for _, p := range passes {
		if p != nil {
			m.passes[p.ID] = p
		}
	}
	return m
}

func (m *mockGuestPassStore) Create(_ context.Context, tenantID string, in *domain.GuestPassCreateReq) (*domain.EventGuestPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &domain.EventGuestPass{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		QRToken:    token.Issue(),
		GuestName:  in.GuestName,
		GuestCount: in.GuestCount,
		CreatedAt:  time.Now(),
	}
	m.passes[p.ID] = p
	return p, nil
}

func (m *mockGuestPassStore) GetByToken(_ context.Context, qrToken string) (*domain.EventGuestPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.passes {
		if p.QRToken == qrToken {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockGuestPassStore) List(_ context.Context, tenantID string, limit, offset int) ([]domain.EventGuestPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventGuestPass
	for _, p := range m.passes {
		if p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockGuestPassStore) ListByDateRange(_ context.Context, tenantID string, from, to time.Time) ([]domain.EventGuestPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventGuestPass
	for _, p := range m.passes {
		if p.TenantID == tenantID && !p.CreatedAt.Before(from) && p.CreatedAt.Before(to) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockGuestPassStore) Redeem(_ context.Context, tenantID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passes[id]
	if !ok || p.TenantID != tenantID || p.Redeemed {
		return false, nil
	}
	p.Redeemed = true
	now := time.Now()
	p.RedeemedAt = &now
	return true, nil
}

type mockIdemStore struct {
	mu      sync.Mutex
	pending map[string]bool
	records map[string]*domain.AttendanceResult
}

func newMockIdemStore() *mockIdemStore {
	return &mockIdemStore{
		pending: make(map[string]bool),
		records: make(map[string]*domain.AttendanceResult),
	}
}

func (m *mockIdemStore) Reserve(_ context.Context, key string, _ time.Duration) (bool, *domain.AttendanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.records[key]; ok {
		return false, stored, nil
	}
	if m.pending[key] {
		return false, nil, nil
	}
	m.pending[key] = true
	return true, nil, nil
}

func (m *mockIdemStore) Complete(_ context.Context, key string, result *domain.AttendanceResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	m.records[key] = result
	return nil
}

func (m *mockIdemStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	return nil
}

func (m *mockIdemStore) CleanupExpired(context.Context) (int64, error) { return 0, nil }
