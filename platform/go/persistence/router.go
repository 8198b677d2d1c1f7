package persistence

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// ErrNoActiveTenant is returned by a strict router when a tenant-scoped,
// non-shared entity is accessed without an active tenant binding.
var ErrNoActiveTenant = errors.New("no active tenant binding for tenant-scoped entity")

// Entity kinds known to the router. Control-plane kinds always live in the
// control-plane database; tenant-scoped kinds live in the per-tenant database
// unless listed as shared (small cross-tenant reference data).
const (
	EntityTenant       = "tenant"
	EntityOrganization = "organization"
	EntityUser         = "user"
	EntityProvisionLog = "provision_log"

	EntityEmpresa      = "empresa"
	EntityProveedor    = "proveedor"
	EntityContrato     = "contrato"
	EntityOperacion    = "operacion"
	EntityConciliacion = "conciliacion"
	EntityExpediente   = "expediente"

	EntityLegalConsultation    = "legal_consultation"
	EntityLegalReferenceSource = "legal_reference_source"
)

// Router decides which database alias serves a given entity kind.
type Router struct {
	tenantScoped map[string]struct{}
	shared       map[string]struct{}
	strict       bool
	logger       *zap.Logger
}

// RouterOption customizes router construction.
type RouterOption func(*Router)

// Strict makes the missing-binding case for tenant-scoped entities an explicit
// error instead of the historical silent fallback to the control plane.
func Strict() RouterOption {
	return func(r *Router) { r.strict = true }
}

// WithTenantScoped replaces the default tenant-scoped entity set.
func WithTenantScoped(kinds ...string) RouterOption {
	return func(r *Router) {
		r.tenantScoped = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			r.tenantScoped[k] = struct{}{}
		}
	}
}

// WithShared replaces the default shared entity set.
func WithShared(kinds ...string) RouterOption {
	return func(r *Router) {
		r.shared = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			r.shared[k] = struct{}{}
		}
	}
}

// NewRouter constructs a Router with the default entity sets.
func NewRouter(logger *zap.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		tenantScoped: map[string]struct{}{
			EntityEmpresa:              {},
			EntityProveedor:            {},
			EntityContrato:             {},
			EntityOperacion:            {},
			EntityConciliacion:         {},
			EntityExpediente:           {},
			EntityLegalConsultation:    {},
			EntityLegalReferenceSource: {},
		},
		shared: map[string]struct{}{
			EntityLegalConsultation:    {},
			EntityLegalReferenceSource: {},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsShared reports whether the entity kind is cross-tenant reference data.
func (r *Router) IsShared(entity string) bool {
	_, ok := r.shared[entity]
	return ok
}

// usesTenantDB reports whether reads/writes for the entity must follow the
// active tenant binding.
func (r *Router) usesTenantDB(entity string) bool {
	if _, ok := r.tenantScoped[entity]; !ok {
		return false
	}
	return !r.IsShared(entity)
}

// AliasFor returns the database alias serving reads and writes of the entity.
// Control-plane and shared kinds always route to the control plane. For
// tenant-scoped kinds the active binding's alias is returned; without a
// binding the router falls back to the control plane (logging a warning)
// unless constructed with Strict, in which case it returns ErrNoActiveTenant.
func (r *Router) AliasFor(ctx context.Context, entity string) (string, error) {
	if !r.usesTenantDB(entity) {
		return ControlPlaneAlias, nil
	}

	if alias, ok := tenant.CurrentAlias(ctx); ok {
		return alias, nil
	}

	if r.strict {
		return "", ErrNoActiveTenant
	}

	r.logger.Warn("tenant-scoped entity accessed without active tenant binding, falling back to control plane",
		zap.String("entity", entity))
	return ControlPlaneAlias, nil
}

// AllowMigrate reports whether a schema migration for the entity may run
// against the given alias. Tenant-scoped, non-shared entities may only migrate
// against the currently-active tenant alias, or the control plane when no
// binding is active. Everything else migrates only against the control plane.
func (r *Router) AllowMigrate(ctx context.Context, alias, entity string) bool {
	if r.usesTenantDB(entity) {
		if active, ok := tenant.CurrentAlias(ctx); ok {
			return alias == active
		}
		return alias == ControlPlaneAlias
	}
	return alias == ControlPlaneAlias
}
