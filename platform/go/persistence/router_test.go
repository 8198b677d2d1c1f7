package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

func boundContext(slug string) context.Context {
	t := tenant.Tenant{ID: uuid.New(), Slug: slug, IsActive: true}
	return tenant.WithBinding(context.Background(), tenant.Binding{
		Tenant: t,
		Alias:  t.Alias(),
	})
}

func TestAliasForControlPlaneEntities(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)
	ctx := boundContext("acme")

	// Control-plane kinds ignore the binding entirely.
	for _, entity := range []string{EntityTenant, EntityOrganization, EntityUser, EntityProvisionLog} {
		alias, err := r.AliasFor(ctx, entity)
		require.NoError(t, err)
		require.Equal(t, ControlPlaneAlias, alias, entity)
	}
}

func TestAliasForFollowsActiveBinding(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)

	alias, err := r.AliasFor(boundContext("acme"), EntityEmpresa)
	require.NoError(t, err)
	require.Equal(t, "tenant_acme", alias)

	// Same entity, different binding, different alias.
	alias, err = r.AliasFor(boundContext("globex"), EntityEmpresa)
	require.NoError(t, err)
	require.Equal(t, "tenant_globex", alias)
}

func TestAliasForSharedEntitiesPinnedToControlPlane(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)

	for _, entity := range []string{EntityLegalConsultation, EntityLegalReferenceSource} {
		// With a binding active.
		alias, err := r.AliasFor(boundContext("acme"), entity)
		require.NoError(t, err)
		require.Equal(t, ControlPlaneAlias, alias, entity)

		// And without.
		alias, err = r.AliasFor(context.Background(), entity)
		require.NoError(t, err)
		require.Equal(t, ControlPlaneAlias, alias, entity)
	}
}

func TestAliasForFallsBackWithoutBinding(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)

	alias, err := r.AliasFor(context.Background(), EntityOperacion)
	require.NoError(t, err)
	require.Equal(t, ControlPlaneAlias, alias)
}

func TestAliasForStrictErrorsWithoutBinding(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil, Strict())

	_, err := r.AliasFor(context.Background(), EntityOperacion)
	require.ErrorIs(t, err, ErrNoActiveTenant)

	// A binding still resolves normally.
	alias, err := r.AliasFor(boundContext("acme"), EntityOperacion)
	require.NoError(t, err)
	require.Equal(t, "tenant_acme", alias)
}

func TestAliasForClearedBinding(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil, Strict())
	store := stubStore{}
	activator := tenant.NewActivator(store, stubRegistrar{}, nil)

	ctx, _, err := activator.Activate(context.Background(), "acme")
	require.NoError(t, err)

	alias, err := r.AliasFor(ctx, EntityEmpresa)
	require.NoError(t, err)
	require.Equal(t, "tenant_acme", alias)

	cleared := activator.Clear(ctx)
	_, err = r.AliasFor(cleared, EntityEmpresa)
	require.ErrorIs(t, err, ErrNoActiveTenant)
}

func TestAllowMigrate(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)
	ctx := boundContext("acme")

	// Control-plane entities migrate only on the control plane.
	require.True(t, r.AllowMigrate(ctx, ControlPlaneAlias, EntityTenant))
	require.False(t, r.AllowMigrate(ctx, "tenant_acme", EntityTenant))

	// Tenant-scoped entities migrate only on the active alias while bound.
	require.True(t, r.AllowMigrate(ctx, "tenant_acme", EntityEmpresa))
	require.False(t, r.AllowMigrate(ctx, "tenant_globex", EntityEmpresa))
	require.False(t, r.AllowMigrate(ctx, ControlPlaneAlias, EntityEmpresa))

	// Without a binding they may only touch the control plane.
	require.True(t, r.AllowMigrate(context.Background(), ControlPlaneAlias, EntityEmpresa))
	require.False(t, r.AllowMigrate(context.Background(), "tenant_acme", EntityEmpresa))

	// Shared entities are control-plane only even while bound.
	require.True(t, r.AllowMigrate(ctx, ControlPlaneAlias, EntityLegalReferenceSource))
	require.False(t, r.AllowMigrate(ctx, "tenant_acme", EntityLegalReferenceSource))
}

func TestRouterCustomEntitySets(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil, WithTenantScoped("invoice"), WithShared())

	alias, err := r.AliasFor(boundContext("acme"), "invoice")
	require.NoError(t, err)
	require.Equal(t, "tenant_acme", alias)

	// Unknown kinds default to the control plane.
	alias, err = r.AliasFor(boundContext("acme"), "whatever")
	require.NoError(t, err)
	require.Equal(t, ControlPlaneAlias, alias)
}

type stubStore struct{}

func (stubStore) FindBySlug(_ context.Context, slug string) (tenant.Tenant, error) {
	return tenant.Tenant{ID: uuid.New(), Slug: slug, IsActive: true}, nil
}

type stubRegistrar struct{}

func (stubRegistrar) EnsureAlias(context.Context, string, string) error { return nil }
