package domain

import "time"

// EventGuestPass is a single-use admission: a fixed guest count, admitted
// once. Redemption is binary, never additive.
type EventGuestPass struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	QRToken    string     `json:"qr_token"`
	GuestName  string     `json:"guest_name"`
	GuestCount int        `json:"guest_count"`
	Redeemed   bool       `json:"redeemed"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type GuestPassCreateReq struct {
	GuestName  string `json:"guest_name"`
	GuestCount int    `json:"guest_count"`
}

// RedemptionResult reports the outcome of a redeem call. AlreadyRedeemed
// is informational: it means duplicate-scan protection worked.
type RedemptionResult struct {
	Success         bool   `json:"success"`
	AlreadyRedeemed bool   `json:"already_redeemed,omitempty"`
	GuestName       string `json:"guest_name,omitempty"`
	GuestCount      int    `json:"guest_count,omitempty"`
	Message         string `json:"message"`
}

const (
	MinGuestCount = 1
	MaxGuestCount = 50
)
