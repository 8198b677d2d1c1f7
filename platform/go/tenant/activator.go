package tenant

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Store is the minimal control-plane lookup needed to resolve a slug.
// Implementations must return ErrTenantNotFound when the slug is unknown.
type Store interface {
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
}

// Registrar registers tenant database aliases in the process-wide connection
// registry. EnsureAlias must be safe under concurrent first use and must be a
// no-op when the alias is already registered.
type Registrar interface {
	EnsureAlias(ctx context.Context, alias, connString string) error
}

// Activator resolves a tenant slug to an active database binding for the
// duration of a unit of work.
type Activator struct {
	store     Store
	registrar Registrar
	logger    *zap.Logger
}

// NewActivator constructs an Activator with required dependencies.
func NewActivator(store Store, registrar Registrar, logger *zap.Logger) *Activator {
	if store == nil {
		panic("activator requires tenant store")
	}
	if registrar == nil {
		panic("activator requires connection registrar")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activator{store: store, registrar: registrar, logger: logger}
}

// Activate looks up the tenant by slug in the control-plane store, registers
// its database alias in the connection registry (the physical connection is
// opened lazily on first use), and returns a derived context carrying the
// binding. Fails with ErrTenantNotFound or ErrTenantNotActive.
func (a *Activator) Activate(ctx context.Context, slug string) (context.Context, Tenant, error) {
	t, err := a.store.FindBySlug(ctx, slug)
	if err != nil {
		return ctx, Tenant{}, err
	}
	return a.Bind(ctx, t)
}

// Bind activates an already-resolved tenant record: it rejects inactive
// tenants, registers the alias, and attaches the binding to the context.
// Used by Activate and by callers holding a cached tenant record.
func (a *Activator) Bind(ctx context.Context, t Tenant) (context.Context, Tenant, error) {
	if !t.IsActive {
		return ctx, Tenant{}, ErrTenantNotActive
	}

	alias := t.Alias()
	if err := a.registrar.EnsureAlias(ctx, alias, t.ConnString()); err != nil {
		return ctx, Tenant{}, fmt.Errorf("register tenant alias %s: %w", alias, err)
	}

	a.logger.Debug("tenant activated", zap.String("slug", t.Slug), zap.String("alias", alias))
	return WithBinding(ctx, Binding{Tenant: t, Alias: alias}), t, nil
}

// Clear unbinds the tenant from the context. Safe to call when no binding is
// present. Pools registered for the alias stay cached in the registry and are
// closed on registry shutdown, so no per-request teardown is needed.
func (a *Activator) Clear(ctx context.Context) context.Context {
	if _, ok := FromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, bindingKey, nil)
}
