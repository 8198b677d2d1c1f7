package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	usersvc "github.com/materialidadmx/materialidad-saas/domains/users/be/service"
	platformauth "github.com/materialidadmx/materialidad-saas/platform/go/auth"
	"github.com/materialidadmx/materialidad-saas/platform/go/httpjson"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// TenantResolver looks up the tenant a user belongs to so its slug can be
// embedded in the token. Nil tenant id means a platform-level user.
type TenantResolver interface {
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
}

// Handler implements the login endpoint.
type Handler struct {
	users   *usersvc.Service
	tenants TenantResolver
	issuer  *platformauth.Issuer
	ttl     time.Duration
	logger  *zap.Logger
}

func New(users *usersvc.Service, tenants TenantResolver, issuer *platformauth.Issuer, ttl time.Duration, logger *zap.Logger) *Handler {
	if users == nil {
		panic("users service is required")
	}
	if tenants == nil {
		panic("tenant resolver is required")
	}
	if issuer == nil {
		panic("token issuer is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, tenants: tenants, issuer: issuer, ttl: ttl, logger: logger}
}

// Routes returns the chi router for the auth API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.login)
	return r
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresIn   int          `json:"expiresIn"`
	User        userResponse `json:"user"`
}

type userResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName,omitempty"`
	IsAdmin    bool      `json:"isAdmin"`
	TenantSlug string    `json:"tenantSlug,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, usersvc.ErrInvalidCredentials) {
			httpjson.WriteDetail(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("authenticate user", zap.Error(err))
		httpjson.WriteDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	slug := ""
	if user.TenantID != nil {
		t, err := h.tenants.Get(r.Context(), *user.TenantID)
		if err != nil {
			// Orphaned tenant reference; issue a token without the claim.
			h.logger.Warn("resolve user tenant",
				zap.String("user_id", user.ID.String()), zap.Error(err))
		} else {
			slug = t.Slug
		}
	}

	creds := platformauth.UserCredentials{
		ID:         user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		IsAdmin:    user.IsSuperuser,
		TenantSlug: slug,
	}
	token, err := h.issuer.Issue(creds)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		httpjson.WriteDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpjson.Write(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.ttl.Seconds()),
		User: userResponse{
			ID:         creds.ID,
			Email:      creds.Email,
			FullName:   creds.FullName,
			IsAdmin:    creds.IsAdmin,
			TenantSlug: creds.TenantSlug,
		},
	})
}
