package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
	platformauth "github.com/materialidadmx/materialidad-saas/platform/go/auth"
	"github.com/materialidadmx/materialidad-saas/platform/go/httpjson"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// Handler exposes the tenant registry and provisioning over HTTP. All routes
// are admin-only; the router group mounting them applies the auth middleware.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the chi router for the tenants admin API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.provision)
	r.Get("/logs", h.logs)
	r.Get("/{tenantID}", h.get)
	r.Patch("/{tenantID}", h.update)
	r.Post("/{tenantID}/deactivate", h.deactivate)
	r.Post("/{tenantID}/reactivate", h.reactivate)
	return r
}

// tenantResponse is the client-facing view. Database credentials never leave
// the control plane.
type tenantResponse struct {
	ID              uuid.UUID  `json:"id"`
	OrganizationID  *uuid.UUID `json:"organizationId,omitempty"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	DBName          string     `json:"dbName"`
	DBHost          string     `json:"dbHost"`
	DBPort          int        `json:"dbPort"`
	DefaultCurrency string     `json:"defaultCurrency"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toResponse(t tenant.Tenant) tenantResponse {
	return tenantResponse{
		ID:              t.ID,
		OrganizationID:  t.OrganizationID,
		Name:            t.Name,
		Slug:            t.Slug,
		DBName:          t.DBName,
		DBHost:          t.DBHost,
		DBPort:          t.DBPort,
		DefaultCurrency: t.DefaultCurrency,
		IsActive:        t.IsActive,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

type listResponse struct {
	Items      []tenantResponse `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{
		Page:       intQuery(q.Get("page"), 1),
		PageSize:   intQuery(q.Get("pageSize"), 20),
		OnlyActive: q.Get("active") == "true",
	}
	if raw := q.Get("organizationId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpjson.WriteDetail(w, http.StatusBadRequest, "invalid organizationId")
			return
		}
		opts.Organization = &id
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.internal(w, r, "list tenants", err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toResponse(t))
	}
	httpjson.Write(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

type provisionRequest struct {
	Name            string     `json:"name" validate:"required"`
	Slug            string     `json:"slug" validate:"required"`
	OrganizationID  *uuid.UUID `json:"organizationId"`
	DBName          string     `json:"dbName" validate:"required"`
	DBUser          string     `json:"dbUser" validate:"required"`
	DBPassword      string     `json:"dbPassword" validate:"required"`
	DBHost          string     `json:"dbHost" validate:"required"`
	DBPort          int        `json:"dbPort" validate:"required,min=1,max=65535"`
	DefaultCurrency string     `json:"defaultCurrency" validate:"omitempty,len=3"`
	AdminEmail      string     `json:"adminEmail" validate:"required,email"`
	AdminPassword   string     `json:"adminPassword" validate:"required,min=8"`
	AdminName       string     `json:"adminName"`
	CreateDatabase  bool       `json:"createDatabase"`
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	input := service.ProvisionInput{
		Name:            req.Name,
		Slug:            req.Slug,
		OrganizationID:  req.OrganizationID,
		DBName:          req.DBName,
		DBUser:          req.DBUser,
		DBPassword:      req.DBPassword,
		DBHost:          req.DBHost,
		DBPort:          req.DBPort,
		DefaultCurrency: req.DefaultCurrency,
		AdminEmail:      req.AdminEmail,
		AdminPassword:   req.AdminPassword,
		AdminName:       req.AdminName,
		CreateDatabase:  req.CreateDatabase,
	}
	if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
		input.InitiatedBy = &creds.ID
	}

	t, err := h.svc.Provision(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConflictSlug), errors.Is(err, service.ErrConflictDBName):
			httpjson.WriteDetail(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("tenant provisioning failed", zap.String("slug", req.Slug), zap.Error(err))
			httpjson.WriteDetail(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	httpjson.Write(w, http.StatusCreated, toResponse(t))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpjson.WriteDetail(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.internal(w, r, "get tenant", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(t))
}

type updateRequest struct {
	Name            *string    `json:"name"`
	DefaultCurrency *string    `json:"defaultCurrency" validate:"omitempty,len=3"`
	OrganizationID  *uuid.UUID `json:"organizationId"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := httpjson.Decode(r, &req); err != nil {
		// Unknown fields are rejected by the decoder, which is how attempts to
		// change the slug or database identity surface: as a 400 here.
		httpjson.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.svc.Update(r.Context(), id, service.UpdateInput{
		Name:            req.Name,
		DefaultCurrency: req.DefaultCurrency,
		OrganizationID:  req.OrganizationID,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpjson.WriteDetail(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.internal(w, r, "update tenant", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(t))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var (
		t   tenant.Tenant
		err error
	)
	if active {
		t, err = h.svc.Reactivate(r.Context(), id)
	} else {
		t, err = h.svc.Deactivate(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpjson.WriteDetail(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.internal(w, r, "set tenant active", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(t))
}

type logResponse struct {
	ID          int64          `json:"id"`
	Slug        string         `json:"slug"`
	AdminEmail  string         `json:"adminEmail"`
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	InitiatedBy *uuid.UUID     `json:"initiatedBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.svc.Logs(r.Context(), q.Get("slug"), intQuery(q.Get("limit"), 50))
	if err != nil {
		h.internal(w, r, "list provision logs", err)
		return
	}

	out := make([]logResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, logResponse{
			ID:          e.ID,
			Slug:        e.Slug,
			AdminEmail:  e.AdminEmail,
			Status:      e.Status,
			Message:     e.Message,
			Metadata:    e.Metadata,
			InitiatedBy: e.InitiatedBy,
			CreatedAt:   e.CreatedAt,
		})
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpjson.WriteDetail(w, http.StatusBadRequest, "invalid tenant id")
		return uuid.Nil, false
	}
	return id, true
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
