package domain

import "time"

// WalkInRecord is unscheduled attendance with no token behind it.
// Append-only; staff may delete a mistaken entry.
type WalkInRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	PersonCount int       `json:"person_count"`
	OccurredAt  time.Time `json:"occurred_at"`
	Notes       string    `json:"notes"`
	RecordedBy  string    `json:"recorded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type WalkInCreateReq struct {
	PersonCount int       `json:"person_count"`
	OccurredAt  time.Time `json:"occurred_at"`
	Notes       string    `json:"notes"`
	RecordedBy  string    `json:"recorded_by"`
}
