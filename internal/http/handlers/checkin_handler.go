package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/http/middleware"
	"github.com/aforo/aforo/internal/http/response"
	"github.com/aforo/aforo/internal/ledger"
	"github.com/aforo/aforo/internal/token"
	"github.com/aforo/aforo/pkg/logger"
)

const (
	actionInfo      = "info"
	actionIncrement = "increment"
)

// CheckInHandler is the unified scan endpoint. One route serves both
// ticket kinds: the token decides whether the scan is an attendance
// increment or a pass redemption, the client only sends what it scanned.
type CheckInHandler struct {
	Tokens      *token.Service
	Attendance  ledger.AttendanceLedger
	Redemptions ledger.RedemptionLedger
}

func NewCheckInHandler(tokens *token.Service, attendance ledger.AttendanceLedger, redemptions ledger.RedemptionLedger) *CheckInHandler {
	return &CheckInHandler{
		Tokens:      tokens,
		Attendance:  attendance,
		Redemptions: redemptions,
	}
}

func (h *CheckInHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/checkin", h.CheckIn)
	r.Post("/redeem", h.Redeem)
	return r
}

type checkInReq struct {
	QRToken string `json:"qr_token"`
	Action  string `json:"action"`
	// Delta defaults to 1; staff may send more than one person through on
	// a single confirmation, or a negative correction.
	Delta int `json:"delta,omitempty"`
}

type reservationInfoRes struct {
	Kind        token.Kind          `json:"kind"`
	Reservation *domain.Reservation `json:"reservation"`
	Excess      int                 `json:"excess"`
}

type guestPassInfoRes struct {
	Kind      token.Kind             `json:"kind"`
	GuestPass *domain.EventGuestPass `json:"guest_pass"`
}

type attendanceRes struct {
	Kind   token.Kind               `json:"kind"`
	Result *domain.AttendanceResult `json:"result"`
}

type redemptionRes struct {
	Kind   token.Kind               `json:"kind"`
	Result *domain.RedemptionResult `json:"result"`
}

func (h *CheckInHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var in checkInReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.QRToken == "" {
		response.BadRequest(w, "qr_token is required")
		return
	}
	if in.Action != actionInfo && in.Action != actionIncrement {
		response.BadRequest(w, "action must be 'info' or 'increment'")
		return
	}

	tenantID := middleware.TenantFrom(r.Context())
	res, err := h.Tokens.Resolve(r.Context(), in.QRToken, tenantID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	if in.Action == actionInfo {
		h.writeInfo(w, res)
		return
	}

	switch res.Kind {
	case token.KindReservation:
		delta := in.Delta
		if delta == 0 {
			delta = 1
		}
		result, err := h.Attendance.Increment(r.Context(), tenantID,
			res.Reservation.ID, delta, r.Header.Get("Idempotency-Key"))
		if err != nil {
			response.DomainError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, attendanceRes{Kind: res.Kind, Result: result})

	case token.KindEventGuest:
		result, err := h.Redemptions.Redeem(r.Context(), tenantID, res.GuestPass)
		if err != nil {
			response.DomainError(w, err)
			return
		}
		// An already-redeemed pass is a normal outcome for the door staff,
		// not a failed request.
		response.WriteJSON(w, http.StatusOK, redemptionRes{Kind: res.Kind, Result: result})

	default:
		logger.ErrorContext(r.Context(), "Unknown token kind", "kind", res.Kind)
		response.InternalError(w, "internal server error")
	}
}

// Redeem is a narrower entry point for guest-pass-only scanners. A
// reservation token here is a client mistake, not a check-in.
func (h *CheckInHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		QRToken string `json:"qr_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.QRToken == "" {
		response.BadRequest(w, "qr_token is required")
		return
	}

	tenantID := middleware.TenantFrom(r.Context())
	res, err := h.Tokens.Resolve(r.Context(), in.QRToken, tenantID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if res.Kind != token.KindEventGuest {
		response.BadRequest(w, "token is not a guest pass")
		return
	}

	result, err := h.Redemptions.Redeem(r.Context(), tenantID, res.GuestPass)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, redemptionRes{Kind: res.Kind, Result: result})
}

func (h *CheckInHandler) writeInfo(w http.ResponseWriter, res *token.Resolution) {
	switch res.Kind {
	case token.KindReservation:
		response.WriteJSON(w, http.StatusOK, reservationInfoRes{
			Kind:        res.Kind,
			Reservation: res.Reservation,
			Excess:      res.Reservation.Excess(),
		})
	case token.KindEventGuest:
		response.WriteJSON(w, http.StatusOK, guestPassInfoRes{
			Kind:      res.Kind,
			GuestPass: res.GuestPass,
		})
	default:
		response.InternalError(w, "internal server error")
	}
}
