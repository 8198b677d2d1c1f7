package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	tenantsvc "github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
	usersrepo "github.com/materialidadmx/materialidad-saas/domains/users/be/repo"
	usersvc "github.com/materialidadmx/materialidad-saas/domains/users/be/service"
	platformauth "github.com/materialidadmx/materialidad-saas/platform/go/auth"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

type fakeTenants struct {
	byID map[uuid.UUID]tenant.Tenant
}

func (f *fakeTenants) Get(_ context.Context, id uuid.UUID) (tenant.Tenant, error) {
	t, ok := f.byID[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	return t, nil
}

func newLoginFixture(t *testing.T) (http.Handler, *platformauth.Verifier) {
	t.Helper()

	users := usersvc.New(usersrepo.NewMemoryRepository(), nil)

	tenantID := uuid.New()
	tenants := &fakeTenants{byID: map[uuid.UUID]tenant.Tenant{
		tenantID: {ID: tenantID, Slug: "acme", IsActive: true},
	}}

	_, err := users.UpsertAdmin(context.Background(), tenantsvc.AdminBootstrapInput{
		Email:    "admin@acme.mx",
		Password: "s3cret99",
		FullName: "Acme Admin",
		TenantID: tenantID,
	})
	require.NoError(t, err)

	secret := []byte("test-secret")
	issuer := platformauth.NewIssuer(secret, "materialidad", time.Hour)
	h := New(users, tenants, issuer, time.Hour, nil)
	return h.Routes(), platformauth.NewVerifier(secret, "materialidad")
}

func postLogin(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginIssuesTokenWithTenantClaim(t *testing.T) {
	t.Parallel()

	h, verifier := newLoginFixture(t)

	rec := postLogin(h, `{"email": "admin@acme.mx", "password": "s3cret99"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, "acme", resp.User.TenantSlug)
	require.True(t, resp.User.IsAdmin)

	claims, err := verifier.Verify(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "acme", claims.TenantSlug)
	require.Equal(t, "admin@acme.mx", claims.Email)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	h, _ := newLoginFixture(t)

	rec := postLogin(h, `{"email": "admin@acme.mx", "password": "wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"detail":"invalid credentials"}`, rec.Body.String())

	rec = postLogin(h, `{"email": "nobody@acme.mx", "password": "s3cret99"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidatesBody(t *testing.T) {
	t.Parallel()

	h, _ := newLoginFixture(t)

	rec := postLogin(h, `{"email": "not-an-email", "password": ""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
