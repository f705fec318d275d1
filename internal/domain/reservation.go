package domain

import "time"

type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "pending"
	ReservationConfirmed  ReservationStatus = "confirmed"
	ReservationCompleted  ReservationStatus = "completed"
	ReservationOverbooked ReservationStatus = "overbooked"
	ReservationCancelled  ReservationStatus = "cancelled"
)

func ParseReservationStatus(s string) (ReservationStatus, bool) {
	switch ReservationStatus(s) {
	case ReservationPending, ReservationConfirmed, ReservationCompleted,
		ReservationOverbooked, ReservationCancelled:
		return ReservationStatus(s), true
	default:
		return "", false
	}
}

type Reservation struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	CustomerName    string            `json:"customer_name"`
	Phone           string            `json:"phone"`
	Email           string            `json:"email"`
	ReservedAt      time.Time         `json:"reserved_at"`
	TableRef        string            `json:"table_ref"`
	Capacity        int               `json:"capacity"`
	PromoterID      *string           `json:"promoter_id,omitempty"`
	Status          ReservationStatus `json:"status"`
	AttendanceCount int               `json:"attendance_count"`
	QRToken         string            `json:"qr_token"`
	Notes           string            `json:"notes"`
	LastModifiedAt  time.Time         `json:"last_modified_at"`
	LastModifiedBy  string            `json:"last_modified_by"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Excess is attendance beyond the declared capacity. Tracked, not rejected.
func (r *Reservation) Excess() int {
	return Excess(r.AttendanceCount, r.Capacity)
}

func Excess(attendance, capacity int) int {
	if attendance > capacity {
		return attendance - capacity
	}
	return 0
}

// IsNoShow is a reporting-time classification, never a stored status: the
// reserved time has passed and nobody was checked in.
func (r *Reservation) IsNoShow(now time.Time) bool {
	return r.Status != ReservationCancelled &&
		r.AttendanceCount == 0 &&
		now.After(r.ReservedAt)
}

type ReservationCreateReq struct {
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	ReservedAt   time.Time `json:"reserved_at"`
	TableRef     string    `json:"table_ref"`
	Capacity     int       `json:"capacity"`
	PromoterID   *string   `json:"promoter_id,omitempty"`
	Notes        string    `json:"notes"`
}

type ReservationPatch struct {
	CustomerName *string    `json:"customer_name,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Email        *string    `json:"email,omitempty"`
	ReservedAt   *time.Time `json:"reserved_at,omitempty"`
	TableRef     *string    `json:"table_ref,omitempty"`
	Capacity     *int       `json:"capacity,omitempty"`
	PromoterID   *string    `json:"promoter_id,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	// AttendanceCount is an administrative override; it is the only way
	// attendance changes outside the ledger and it may decrease the count.
	AttendanceCount *int `json:"attendance_count,omitempty"`
}

// AttendanceResult is what an increment returns to the confirming device.
type AttendanceResult struct {
	ReservationID   string            `json:"reservation_id"`
	AttendanceCount int               `json:"attendance_count"`
	Capacity        int               `json:"capacity"`
	Excess          int               `json:"excess"`
	Status          ReservationStatus `json:"status"`
}

// Business rules
const (
	MinCapacity = 1
	MaxCapacity = 100
	MaxDelta    = 50
)
