package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	tenantsvc "github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

type fakeOrgRepo struct {
	byID map[uuid.UUID]Organization
}

func newFakeOrgRepo() *fakeOrgRepo {
	return &fakeOrgRepo{byID: make(map[uuid.UUID]Organization)}
}

func (r *fakeOrgRepo) Create(_ context.Context, org Organization) (Organization, error) {
	r.byID[org.ID] = org
	return org, nil
}

func (r *fakeOrgRepo) Get(_ context.Context, id uuid.UUID) (Organization, error) {
	org, ok := r.byID[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (r *fakeOrgRepo) List(_ context.Context, opts ListOptions) (ListResult, error) {
	out := ListResult{Page: 1, PageSize: 20}
	for _, org := range r.byID {
		if opts.Kind != "" && org.Kind != opts.Kind {
			continue
		}
		out.Organizations = append(out.Organizations, org)
	}
	out.TotalItems = len(out.Organizations)
	out.TotalPages = 1
	return out, nil
}

func (r *fakeOrgRepo) Update(_ context.Context, org Organization) (Organization, error) {
	if _, ok := r.byID[org.ID]; !ok {
		return Organization{}, ErrNotFound
	}
	r.byID[org.ID] = org
	return org, nil
}

type fakeTenantLister struct {
	tenants []tenant.Tenant
}

func (l *fakeTenantLister) List(_ context.Context, opts tenantsvc.ListOptions) (tenantsvc.ListResult, error) {
	matched := make([]tenant.Tenant, 0, len(l.tenants))
	for _, t := range l.tenants {
		if opts.Organization != nil {
			if t.OrganizationID == nil || *t.OrganizationID != *opts.Organization {
				continue
			}
		}
		matched = append(matched, t)
	}
	return tenantsvc.ListResult{
		Tenants:    matched,
		Page:       1,
		PageSize:   len(matched),
		TotalItems: len(matched),
		TotalPages: 1,
	}, nil
}

func TestCreateDefaultsToDespacho(t *testing.T) {
	t.Parallel()

	svc := New(newFakeOrgRepo(), &fakeTenantLister{}, nil)

	org, err := svc.Create(context.Background(), CreateInput{Name: "Contadores MX"})
	require.NoError(t, err)
	require.Equal(t, KindDespacho, org.Kind)
	require.True(t, org.IsActive)

	_, err = svc.Create(context.Background(), CreateInput{Name: "Bad", Kind: "cartel"})
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestUpdateKeepsKind(t *testing.T) {
	t.Parallel()

	repo := newFakeOrgRepo()
	svc := New(repo, &fakeTenantLister{}, nil)

	org, err := svc.Create(context.Background(), CreateInput{Name: "Grupo Norte", Kind: KindCorporativo})
	require.NoError(t, err)

	name := "Grupo Norte SA de CV"
	updated, err := svc.Update(context.Background(), org.ID, UpdateInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)
	require.Equal(t, KindCorporativo, updated.Kind)
}

func TestTenantStatsCountsActiveAndInactive(t *testing.T) {
	t.Parallel()

	repo := newFakeOrgRepo()
	orgID := uuid.New()
	otherID := uuid.New()
	repo.byID[orgID] = Organization{ID: orgID, Name: "Despacho Uno", Kind: KindDespacho, CreatedAt: time.Now()}

	lister := &fakeTenantLister{tenants: []tenant.Tenant{
		{ID: uuid.New(), Slug: "acme", OrganizationID: &orgID, IsActive: true},
		{ID: uuid.New(), Slug: "globex", OrganizationID: &orgID, IsActive: false},
		{ID: uuid.New(), Slug: "initech", OrganizationID: &orgID, IsActive: true},
		{ID: uuid.New(), Slug: "umbrella", OrganizationID: &otherID, IsActive: true},
	}}
	svc := New(repo, lister, nil)

	stats, err := svc.TenantStats(context.Background(), orgID)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalTenants)
	require.Equal(t, 2, stats.ActiveTenants)
	require.Equal(t, 1, stats.InactiveTenants)

	_, err = svc.TenantStats(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
