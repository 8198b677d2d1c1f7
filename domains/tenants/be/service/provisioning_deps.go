package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// DBProvisioner creates the tenant's database role and physical database.
// Both operations are idempotent by name-check-then-create; re-running a
// failed provision is safe for these steps.
type DBProvisioner interface {
	EnsureRole(ctx context.Context, name, password string) error
	EnsureDatabase(ctx context.Context, name, owner string) error
}

// Migrator applies embedded schema migrations. MigrateTenant must be called
// with a context carrying the tenant binding so the router's migration guard
// can verify the target alias.
type Migrator interface {
	MigrateControlPlane(ctx context.Context) error
	MigrateTenant(ctx context.Context, alias string) error
}

// AdminBootstrapInput describes the administrative user created (or reset)
// for a freshly provisioned tenant.
type AdminBootstrapInput struct {
	Email          string
	Password       string
	FullName       string
	TenantID       uuid.UUID
	OrganizationID *uuid.UUID
}

// AdminBootstrapper upserts the tenant's administrative user in the
// control-plane user store, keyed by email, with elevated privileges.
type AdminBootstrapper interface {
	UpsertAdmin(ctx context.Context, input AdminBootstrapInput) (uuid.UUID, error)
}

// EventSink receives a fire-and-forget notification after a successful
// provision. Implementations must never return delivery failures.
type EventSink interface {
	TenantProvisioned(ctx context.Context, t tenant.Tenant)
}

// ProvisioningDeps groups the collaborators of the provisioning saga.
type ProvisioningDeps struct {
	Activator *tenant.Activator
	DB        DBProvisioner
	Migrator  Migrator
	Admin     AdminBootstrapper
	// Events is optional; nil disables notifications.
	Events EventSink
}

func (d ProvisioningDeps) validate() {
	if d.Activator == nil {
		panic("provisioning deps require activator")
	}
	if d.DB == nil {
		panic("provisioning deps require db provisioner")
	}
	if d.Migrator == nil {
		panic("provisioning deps require migrator")
	}
	if d.Admin == nil {
		panic("provisioning deps require admin bootstrapper")
	}
}
