package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	tenantsvc "github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
)

type fakeRepo struct {
	byEmail map[string]Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byEmail: make(map[string]Record)}
}

func (r *fakeRepo) Upsert(_ context.Context, rec Record) (Record, error) {
	if existing, ok := r.byEmail[rec.Email]; ok {
		existing.PasswordHash = rec.PasswordHash
		existing.FullName = rec.FullName
		existing.IsStaff = rec.IsStaff
		existing.IsSuperuser = rec.IsSuperuser
		existing.TenantID = rec.TenantID
		existing.OrganizationID = rec.OrganizationID
		existing.UpdatedAt = rec.UpdatedAt
		r.byEmail[rec.Email] = existing
		return existing, nil
	}
	r.byEmail[rec.Email] = rec
	return rec, nil
}

func (r *fakeRepo) FindByEmail(_ context.Context, email string) (Record, error) {
	rec, ok := r.byEmail[email]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (Record, error) {
	for _, rec := range r.byEmail {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func TestUpsertAdminCreatesSuperuser(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := New(repo, nil)
	tenantID := uuid.New()

	id, err := svc.UpsertAdmin(context.Background(), tenantsvc.AdminBootstrapInput{
		Email:    "Admin@Acme.MX",
		Password: "s3cret",
		FullName: "Admin",
		TenantID: tenantID,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	rec, err := repo.FindByEmail(context.Background(), "admin@acme.mx")
	require.NoError(t, err)
	require.True(t, rec.IsStaff)
	require.True(t, rec.IsSuperuser)
	require.NotNil(t, rec.TenantID)
	require.Equal(t, tenantID, *rec.TenantID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte("s3cret")))
}

func TestUpsertAdminIsIdempotentByEmail(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := New(repo, nil)

	first, err := svc.UpsertAdmin(context.Background(), tenantsvc.AdminBootstrapInput{
		Email:    "admin@acme.mx",
		Password: "old",
		TenantID: uuid.New(),
	})
	require.NoError(t, err)

	second, err := svc.UpsertAdmin(context.Background(), tenantsvc.AdminBootstrapInput{
		Email:    "admin@acme.mx",
		Password: "new",
		TenantID: uuid.New(),
	})
	require.NoError(t, err)
	require.Equal(t, first, second)

	rec, err := repo.FindByEmail(context.Background(), "admin@acme.mx")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte("new")))
	require.Len(t, repo.byEmail, 1)
}

func TestUpsertAdminRejectsBadInput(t *testing.T) {
	t.Parallel()

	svc := New(newFakeRepo(), nil)

	_, err := svc.UpsertAdmin(context.Background(), tenantsvc.AdminBootstrapInput{
		Email: "not-an-email", Password: "x", TenantID: uuid.New(),
	})
	require.Error(t, err)

	_, err = svc.UpsertAdmin(context.Background(), tenantsvc.AdminBootstrapInput{
		Email: "admin@acme.mx", TenantID: uuid.New(),
	})
	require.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := New(repo, nil)

	_, err := svc.UpsertAdmin(context.Background(), tenantsvc.AdminBootstrapInput{
		Email: "admin@acme.mx", Password: "s3cret", TenantID: uuid.New(),
	})
	require.NoError(t, err)

	u, err := svc.Authenticate(context.Background(), "ADMIN@acme.mx", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "admin@acme.mx", u.Email)

	_, err = svc.Authenticate(context.Background(), "admin@acme.mx", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@acme.mx", "s3cret")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
