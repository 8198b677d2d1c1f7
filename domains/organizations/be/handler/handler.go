package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/materialidadmx/materialidad-saas/domains/organizations/be/service"
	"github.com/materialidadmx/materialidad-saas/platform/go/httpjson"
)

// Handler exposes the organizations admin API.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("organizations service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the chi router for the organizations admin API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{orgID}", h.get)
	r.Patch("/{orgID}", h.update)
	r.Get("/{orgID}/tenants", h.tenants)
	r.Get("/{orgID}/stats", h.stats)
	return r
}

type orgResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	ContactPhone string    `json:"contactPhone,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toResponse(org service.Organization) orgResponse {
	return orgResponse{
		ID:           org.ID,
		Name:         org.Name,
		Kind:         org.Kind,
		ContactEmail: org.ContactEmail,
		ContactPhone: org.ContactPhone,
		Notes:        org.Notes,
		IsActive:     org.IsActive,
		CreatedAt:    org.CreatedAt,
		UpdatedAt:    org.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.List(r.Context(), service.ListOptions{
		Page:     intQuery(q.Get("page"), 1),
		PageSize: intQuery(q.Get("pageSize"), 20),
		Kind:     q.Get("kind"),
		Search:   q.Get("search"),
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidKind) {
			httpjson.WriteDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internal(w, r, "list organizations", err)
		return
	}

	items := make([]orgResponse, 0, len(result.Organizations))
	for _, org := range result.Organizations {
		items = append(items, toResponse(org))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"items":      items,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalItems": result.TotalItems,
		"totalPages": result.TotalPages,
	})
}

type createRequest struct {
	Name         string `json:"name" validate:"required"`
	Kind         string `json:"kind" validate:"omitempty,oneof=despacho corporativo"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone string `json:"contactPhone"`
	Notes        string `json:"notes"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	org, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:         req.Name,
		Kind:         req.Kind,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Notes:        req.Notes,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidKind) {
			httpjson.WriteDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internal(w, r, "create organization", err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toResponse(org))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}

	org, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.notFoundOrInternal(w, r, "get organization", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(org))
}

type updateRequest struct {
	Name         *string `json:"name"`
	ContactEmail *string `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone *string `json:"contactPhone"`
	Notes        *string `json:"notes"`
	IsActive     *bool   `json:"isActive"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	org, err := h.svc.Update(r.Context(), id, service.UpdateInput{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Notes:        req.Notes,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.notFoundOrInternal(w, r, "update organization", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(org))
}

func (h *Handler) tenants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	result, err := h.svc.Tenants(r.Context(), id, intQuery(q.Get("page"), 1), intQuery(q.Get("pageSize"), 20))
	if err != nil {
		h.notFoundOrInternal(w, r, "list organization tenants", err)
		return
	}

	type orgTenant struct {
		ID       uuid.UUID `json:"id"`
		Name     string    `json:"name"`
		Slug     string    `json:"slug"`
		IsActive bool      `json:"isActive"`
	}
	items := make([]orgTenant, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, orgTenant{ID: t.ID, Name: t.Name, Slug: t.Slug, IsActive: t.IsActive})
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"items":      items,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalItems": result.TotalItems,
		"totalPages": result.TotalPages,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}

	stats, err := h.svc.TenantStats(r.Context(), id)
	if err != nil {
		h.notFoundOrInternal(w, r, "organization stats", err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]int{
		"totalTenants":    stats.TotalTenants,
		"activeTenants":   stats.ActiveTenants,
		"inactiveTenants": stats.InactiveTenants,
	})
}

func (h *Handler) orgID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpjson.WriteDetail(w, http.StatusBadRequest, "invalid organization id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) notFoundOrInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, service.ErrNotFound) {
		httpjson.WriteDetail(w, http.StatusNotFound, "organization not found")
		return
	}
	h.internal(w, r, msg, err)
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	httpjson.WriteDetail(w, http.StatusInternalServerError, "internal error")
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
