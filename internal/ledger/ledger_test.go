package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aforo/aforo/internal/broadcast"
	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/ledger"
	"github.com/aforo/aforo/pkg/events"
)

// ---------- Mocks ----------

type mockBus struct {
	mu        sync.Mutex
	published []events.ChangeEvent
}

func (m *mockBus) Publish(_ context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var ev events.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	m.mu.Lock()
	m.published = append(m.published, ev)
	m.mu.Unlock()
	return nil
}

func (m *mockBus) Subscribe(string, func(msg *events.Message)) (events.Subscription, error) {
	return nil, nil
}

func (m *mockBus) QueueSubscribe(string, string, func(msg *events.Message)) (events.Subscription, error) {
	return nil, nil
}

func (m *mockBus) Close() error { return nil }

func (m *mockBus) events() []events.ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.ChangeEvent, len(m.published))
	copy(out, m.published)
	return out
}

// mockReservationRepo mirrors the locked increment semantics of the real
// store: the whole read-modify-write runs under one mutex.
type mockReservationRepo struct {
	mu           sync.Mutex
	reservations map[string]*domain.Reservation
}

func newMockReservationRepo(reservations ...*domain.Reservation) *mockReservationRepo {
	m := &mockReservationRepo{reservations: make(map[string]*domain.Reservation)}
	for _, r := range reservations {
		m.reservations[r.ID] = r
	}
	return m
}

func (m *mockReservationRepo) IncrementAttendance(_ context.Context, tenantID, id string, delta int, _ string) (*domain.AttendanceResult, error) {
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

	return &domain.AttendanceResult{
		ReservationID:   r.ID,
		AttendanceCount: r.AttendanceCount,
		Capacity:        r.Capacity,
		Excess:          r.Excess(),
		Status:          r.Status,
	}, nil
}

func (m *mockReservationRepo) Create(context.Context, string, string, *domain.ReservationCreateReq) (*domain.Reservation, error) {
	return nil, nil
}
func (m *mockReservationRepo) GetByID(context.Context, string, string) (*domain.Reservation, error) {
	return nil, nil
}
func (m *mockReservationRepo) GetByToken(context.Context, string) (*domain.Reservation, error) {
	return nil, nil
}
func (m *mockReservationRepo) List(context.Context, string, int, int) ([]domain.Reservation, error) {
	return nil, nil
}
func (m *mockReservationRepo) ListByDateRange(context.Context, string, time.Time, time.Time) ([]domain.Reservation, error) {
	return nil, nil
}
func (m *mockReservationRepo) Update(context.Context, string, string, string, domain.ReservationPatch) (*domain.Reservation, error) {
	return nil, nil
}
func (m *mockReservationRepo) Cancel(context.Context, string, string, string) (bool, error) {
	return false, nil
}

type mockIdempotencyRepo struct {
	mu      sync.Mutex
	pending map[string]bool
	records map[string]*domain.AttendanceResult
}

func newMockIdempotencyRepo() *mockIdempotencyRepo {
	return &mockIdempotencyRepo{
		pending: make(map[string]bool),
		records: make(map[string]*domain.AttendanceResult),
	}
}

func (m *mockIdempotencyRepo) Reserve(_ context.Context, key string, _ time.Duration) (bool, *domain.AttendanceResult, error) {
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

func (m *mockIdempotencyRepo) Complete(_ context.Context, key string, result *domain.AttendanceResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	m.records[key] = result
	return nil
}

func (m *mockIdempotencyRepo) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	return nil
}

func (m *mockIdempotencyRepo) CleanupExpired(context.Context) (int64, error) { return 0, nil }

type mockGuestPassRepo struct {
	mu     sync.Mutex
	passes map[string]*domain.EventGuestPass
}

func newMockGuestPassRepo(passes ...*domain.EventGuestPass) *mockGuestPassRepo {
	m := &mockGuestPassRepo{passes: make(map[string]*domain.EventGuestPass)}
	for _, p := range passes {
		m.passes[p.ID] = p
	}
	return m
}

func (m *mockGuestPassRepo) Redeem(_ context.Context, tenantID, id string) (bool, error) {
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

func (m *mockGuestPassRepo) Create(context.Context, string, *domain.GuestPassCreateReq) (*domain.EventGuestPass, error) {
	return nil, nil
}
func (m *mockGuestPassRepo) GetByToken(context.Context, string) (*domain.EventGuestPass, error) {
	return nil, nil
}
func (m *mockGuestPassRepo) List(context.Context, string, int, int) ([]domain.EventGuestPass, error) {
	return nil, nil
}
func (m *mockGuestPassRepo) ListByDateRange(context.Context, string, time.Time, time.Time) ([]domain.EventGuestPass, error) {
	return nil, nil
}

// ---------- Attendance tests ----------

const tenant = "tenant-1"

func newReservation(capacity int) *domain.Reservation {
	return &domain.Reservation{
		ID:       "res-1",
		TenantID: tenant,
		Capacity: capacity,
		Status:   domain.ReservationPending,
	}
}

func setupAttendance(res *domain.Reservation) (ledger.AttendanceLedger, *mockReservationRepo, *mockIdempotencyRepo, *mockBus) {
	repo := newMockReservationRepo(res)
	idem := newMockIdempotencyRepo()
	bus := &mockBus{}
	l := ledger.NewAttendanceLedger(repo, idem, broadcast.NewBroadcaster(bus), time.Hour)
	return l, repo, idem, bus
}

func TestIncrement_FirstScanConfirms(t *testing.T) {
	res := newReservation(4)
	l, _, _, bus := setupAttendance(res)

	result, err := l.Increment(context.Background(), tenant, res.ID, 1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AttendanceCount != 1 {
		t.Errorf("attendance = %d, want 1", result.AttendanceCount)
	}
	if result.Status != domain.ReservationConfirmed {
		t.Errorf("status = %s, want confirmed", result.Status)
	}
	if result.Excess != 0 {
		t.Errorf("excess = %d, want 0", result.Excess)
	}
	if len(bus.events()) != 1 {
		t.Errorf("published %d events, want 1", len(bus.events()))
	}
}

func TestIncrement_ExcessIsTrackedNotRejected(t *testing.T) {
	res := newReservation(4)
	l, _, _, _ := setupAttendance(res)

	result, err := l.Increment(context.Background(), tenant, res.ID, 6, "")
	if err != nil {
		t.Fatalf("scanning past capacity must succeed: %v", err)
	}
	if result.AttendanceCount != 6 {
		t.Errorf("attendance = %d, want 6", result.AttendanceCount)
	}
	if result.Excess != 2 {
		t.Errorf("excess = %d, want 2", result.Excess)
	}
	if result.Status != domain.ReservationOverbooked {
		t.Errorf("status = %s, want overbooked", result.Status)
	}
}

func TestIncrement_NegativeCorrectionClampsAtZero(t *testing.T) {
	res := newReservation(4)
	res.AttendanceCount = 2
	res.Status = domain.ReservationConfirmed
	l, _, _, _ := setupAttendance(res)

	result, err := l.Increment(context.Background(), tenant, res.ID, -5, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AttendanceCount != 0 {
		t.Errorf("attendance = %d, want 0 (clamped)", result.AttendanceCount)
	}
}

func TestIncrement_DeltaBounds(t *testing.T) {
	res := newReservation(4)
	l, _, _, _ := setupAttendance(res)

	for _, delta := range []int{0, domain.MaxDelta + 1, -domain.MaxDelta - 1} {
		if _, err := l.Increment(context.Background(), tenant, res.ID, delta, ""); err == nil {
			t.Errorf("delta %d should be rejected", delta)
		}
	}
}

func TestIncrement_CancelledRejected(t *testing.T) {
	res := newReservation(4)
	res.Status = domain.ReservationCancelled
	l, _, _, bus := setupAttendance(res)

	_, err := l.Increment(context.Background(), tenant, res.ID, 1, "")
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("want ErrInvalidStateTransition, got %v", err)
	}
	if len(bus.events()) != 0 {
		t.Error("failed increment must not broadcast")
	}
}

func TestIncrement_UnknownReservation(t *testing.T) {
	l, _, _, _ := setupAttendance(newReservation(4))

	_, err := l.Increment(context.Background(), tenant, "missing", 1, "")
	if !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("want ErrReservationNotFound, got %v", err)
	}
}

func TestIncrement_ConcurrentDeltasAllApply(t *testing.T) {
	res := newReservation(10)
	l, _, _, _ := setupAttendance(res)

	var wg sync.WaitGroup
	for _, delta := range []int{1, 2} {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			if _, err := l.Increment(context.Background(), tenant, res.ID, d, ""); err != nil {
				t.Errorf("concurrent increment %d failed: %v", d, err)
			}
		}(delta)
	}
	wg.Wait()

	result, err := l.Increment(context.Background(), tenant, res.ID, 1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AttendanceCount != 4 {
		t.Errorf("attendance = %d, want 4 (1+2 concurrent, then 1)", result.AttendanceCount)
	}
}

func TestIncrement_IdempotentReplay(t *testing.T) {
	res := newReservation(4)
	l, _, _, bus := setupAttendance(res)

	key := "confirm-abc123"
	first, err := l.Increment(context.Background(), tenant, res.ID, 1, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replay, err := l.Increment(context.Background(), tenant, res.ID, 1, key)
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if replay.AttendanceCount != first.AttendanceCount {
		t.Errorf("replay attendance = %d, want %d", replay.AttendanceCount, first.AttendanceCount)
	}
	if len(bus.events()) != 1 {
		t.Errorf("published %d events, want 1 (replay must not rebroadcast)", len(bus.events()))
	}

	// A fresh key is a new scan, not a retry.
	second, err := l.Increment(context.Background(), tenant, res.ID, 1, "confirm-def456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.AttendanceCount != 2 {
		t.Errorf("attendance = %d, want 2", second.AttendanceCount)
	}
}

func TestIncrement_ConcurrentSameKeyAppliesOnce(t *testing.T) {
	res := newReservation(10)
	l, _, _, _ := setupAttendance(res)

	key := "confirm-race"
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := l.Increment(context.Background(), tenant, res.ID, 3, key)
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				// lost the claim race while the winner was in flight
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if result.AttendanceCount != 3 {
				t.Errorf("attendance = %d, want 3 (one application only)", result.AttendanceCount)
			}
		}()
	}
	wg.Wait()

	final, err := l.Increment(context.Background(), tenant, res.ID, 1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.AttendanceCount != 4 {
		t.Errorf("attendance = %d, want 4 (3 applied once, then 1)", final.AttendanceCount)
	}
}

func TestIncrement_FailedApplyFreesKey(t *testing.T) {
	res := newReservation(4)
	res.Status = domain.ReservationCancelled
	l, _, _, _ := setupAttendance(res)

	key := "confirm-after-failure"
	if _, err := l.Increment(context.Background(), tenant, res.ID, 1, key); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("want ErrInvalidStateTransition, got %v", err)
	}

	// The failed call must not keep the key claimed.
	res.Status = domain.ReservationPending
	result, err := l.Increment(context.Background(), tenant, res.ID, 1, key)
	if err != nil {
		t.Fatalf("retry after failure should apply: %v", err)
	}
	if result.AttendanceCount != 1 {
		t.Errorf("attendance = %d, want 1", result.AttendanceCount)
	}
}

// ---------- Redemption tests ----------

func newPass() *domain.EventGuestPass {
	return &domain.EventGuestPass{
		ID:         "pass-1",
		TenantID:   tenant,
		GuestName:  "Dana",
		GuestCount: 3,
	}
}

func TestRedeem_Success(t *testing.T) {
	pass := newPass()
	bus := &mockBus{}
	l := ledger.NewRedemptionLedger(newMockGuestPassRepo(pass), broadcast.NewBroadcaster(bus))

	result, err := l.Redeem(context.Background(), tenant, pass)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("first redemption should succeed")
	}
	if result.GuestCount != 3 || result.GuestName != "Dana" {
		t.Errorf("result = %+v, want guest details echoed back", result)
	}
	if len(bus.events()) != 1 {
		t.Errorf("published %d events, want 1", len(bus.events()))
	}
}

func TestRedeem_SecondScanIsInformational(t *testing.T) {
	pass := newPass()
	bus := &mockBus{}
	l := ledger.NewRedemptionLedger(newMockGuestPassRepo(pass), broadcast.NewBroadcaster(bus))

	if _, err := l.Redeem(context.Background(), tenant, pass); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := l.Redeem(context.Background(), tenant, pass)
	if err != nil {
		t.Fatalf("second redeem must not error: %v", err)
	}
	if result.Success {
		t.Fatal("second redemption must not succeed")
	}
	if !result.AlreadyRedeemed {
		t.Error("second redemption should report already-redeemed")
	}
	if len(bus.events()) != 1 {
		t.Errorf("published %d events, want 1 (losers never broadcast)", len(bus.events()))
	}
}

func TestRedeem_ConcurrentSingleWinner(t *testing.T) {
	pass := newPass()
	bus := &mockBus{}
	l := ledger.NewRedemptionLedger(newMockGuestPassRepo(pass), broadcast.NewBroadcaster(bus))

	const scanners = 8
	results := make([]*domain.RedemptionResult, scanners)

	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := l.Redeem(context.Background(), tenant, pass)
			if err != nil {
				t.Errorf("scanner %d: %v", i, err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, r := range results {
		if r != nil && r.Success {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if len(bus.events()) != 1 {
		t.Errorf("published %d events, want 1", len(bus.events()))
	}
}
