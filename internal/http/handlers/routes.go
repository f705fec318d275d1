package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountV1 attaches every versioned route to r. The scan endpoints are
// registered as plain routes inside the rate-limited group, and the venue
// routes own the sole root mount; chi panics if two subrouters are
// mounted at the same pattern on one tree.
func MountV1(
	r chi.Router,
	checkIn *CheckInHandler,
	reservations *ReservationsHandler,
	changes *ChangesHandler,
	venue *VenueHandler,
	reports *ReportsHandler,
	scanLimit func(http.Handler) http.Handler,
	requireManager func(http.Handler) http.Handler,
) {
	r.Group(func(r chi.Router) {
		r.Use(scanLimit)
		r.Post("/checkin", checkIn.CheckIn)
		r.Post("/redeem", checkIn.Redeem)
	})

	r.Mount("/reservations", reservations.Routes())
	r.Mount("/changes", changes.Routes())
	r.Mount("/", venue.Routes())

	r.Group(func(r chi.Router) {
		r.Use(requireManager)
		r.Mount("/reports", reports.Routes())
	})
}
