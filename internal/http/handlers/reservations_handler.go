package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/http/middleware"
	"github.com/aforo/aforo/internal/http/response"
	"github.com/aforo/aforo/internal/service"
	"github.com/aforo/aforo/pkg/logger"
)

type ReservationsHandler struct {
	Svc service.ReservationService
}

func NewReservationsHandler(svc service.ReservationService) *ReservationsHandler {
	return &ReservationsHandler{Svc: svc}
}

func (h *ReservationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.getByID)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.cancel)
	return r
}

func (h *ReservationsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.ReservationCreateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	res, err := h.Svc.Create(r.Context(), middleware.TenantFrom(r.Context()), &in)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create reservation", "error", err)
		response.BadRequest(w, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusCreated, res)
}

func (h *ReservationsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.Svc.List(r.Context(), middleware.TenantFrom(r.Context()), limit, offset)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list reservations", "error", err)
		response.InternalError(w, "failed to list reservations")
		return
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	response.WriteJSON(w, http.StatusOK, list)
}

func (h *ReservationsHandler) getByID(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Get(r.Context(), middleware.TenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to get reservation", "error", err)
		response.InternalError(w, "failed to get reservation")
		return
	}
	if res == nil {
		response.NotFound(w, "reservation not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch domain.ReservationPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	res, err := h.Svc.Update(r.Context(), middleware.TenantFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Svc.Cancel(r.Context(), middleware.TenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to cancel reservation", "error", err)
		response.InternalError(w, "failed to cancel reservation")
		return
	}
	if !ok {
		response.NotFound(w, "reservation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
