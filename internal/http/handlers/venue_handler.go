package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aforo/aforo/internal/domain"
	"github.com/aforo/aforo/internal/http/middleware"
	"github.com/aforo/aforo/internal/http/response"
	"github.com/aforo/aforo/internal/service"
	"github.com/aforo/aforo/pkg/logger"
)

// VenueHandler serves the door-adjacent resources: walk-in records,
// single-use guest passes and promoters.
type VenueHandler struct {
	Svc service.VenueService
}

func NewVenueHandler(svc service.VenueService) *VenueHandler {
	return &VenueHandler{Svc: svc}
}

func (h *VenueHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/walkins", func(r chi.Router) {
		r.Post("/", h.createWalkIn)
		r.Get("/", h.listWalkIns)
		r.Delete("/{id}", h.deleteWalkIn)
	})

	r.Route("/guestpasses", func(r chi.Router) {
		r.Post("/", h.createGuestPass)
		r.Get("/", h.listGuestPasses)
	})

	r.Route("/promoters", func(r chi.Router) {
		r.Post("/", h.createPromoter)
		r.Get("/", h.listPromoters)
		r.Patch("/{id}", h.updatePromoter)
		r.Delete("/{id}", h.deactivatePromoter)
	})

	return r
}

func (h *VenueHandler) createWalkIn(w http.ResponseWriter, r *http.Request) {
	var in domain.WalkInCreateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	rec, err := h.Svc.RecordWalkIn(r.Context(), middleware.TenantFrom(r.Context()), &in)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusCreated, rec)
}

func (h *VenueHandler) listWalkIns(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.Svc.ListWalkIns(r.Context(), middleware.TenantFrom(r.Context()), limit, offset)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list walk-ins", "error", err)
		response.InternalError(w, "failed to list walk-ins")
		return
	}
	if list == nil {
		list = []domain.WalkInRecord{}
	}
	response.WriteJSON(w, http.StatusOK, list)
}

func (h *VenueHandler) deleteWalkIn(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Svc.DeleteWalkIn(r.Context(), middleware.TenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to delete walk-in", "error", err)
		response.InternalError(w, "failed to delete walk-in")
		return
	}
	if !ok {
		response.NotFound(w, "walk-in record not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VenueHandler) createGuestPass(w http.ResponseWriter, r *http.Request) {
	var in domain.GuestPassCreateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	pass, err := h.Svc.CreateGuestPass(r.Context(), middleware.TenantFrom(r.Context()), &in)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusCreated, pass)
}

func (h *VenueHandler) listGuestPasses(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.Svc.ListGuestPasses(r.Context(), middleware.TenantFrom(r.Context()), limit, offset)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list guest passes", "error", err)
		response.InternalError(w, "failed to list guest passes")
		return
	}
	if list == nil {
		list = []domain.EventGuestPass{}
	}
	response.WriteJSON(w, http.StatusOK, list)
}

func (h *VenueHandler) createPromoter(w http.ResponseWriter, r *http.Request) {
	var in domain.PromoterCreateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	p, err := h.Svc.CreatePromoter(r.Context(), middleware.TenantFrom(r.Context()), &in)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusCreated, p)
}

func (h *VenueHandler) listPromoters(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	list, err := h.Svc.ListPromoters(r.Context(), middleware.TenantFrom(r.Context()), activeOnly)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list promoters", "error", err)
		response.InternalError(w, "failed to list promoters")
		return
	}
	if list == nil {
		list = []domain.Promoter{}
	}
	response.WriteJSON(w, http.StatusOK, list)
}

func (h *VenueHandler) updatePromoter(w http.ResponseWriter, r *http.Request) {
	var patch domain.PromoterPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	p, err := h.Svc.UpdatePromoter(r.Context(), middleware.TenantFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, p)
}

func (h *VenueHandler) deactivatePromoter(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Svc.DeactivatePromoter(r.Context(), middleware.TenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to deactivate promoter", "error", err)
		response.InternalError(w, "failed to deactivate promoter")
		return
	}
	if !ok {
		response.NotFound(w, "promoter not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
