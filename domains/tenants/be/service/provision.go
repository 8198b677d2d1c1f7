package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/materialidadmx/materialidad-saas/platform/go/persistence"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// maxLogMessageLen bounds the message persisted in provision log entries.
const maxLogMessageLen = 500

// ProvisionError wraps every failure mode of the provisioning saga. The log
// entry written alongside it preserves the finer-grained diagnosis.
type ProvisionError struct {
	Err error
}

func (e *ProvisionError) Error() string {
	return "tenant provisioning failed: " + e.Err.Error()
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// ProvisionInput describes a tenant to create end-to-end.
type ProvisionInput struct {
	Name            string
	Slug            string
	OrganizationID  *uuid.UUID
	DBName          string
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          int
	DefaultCurrency string
	AdminEmail      string
	AdminPassword   string
	AdminName       string
	CreateDatabase  bool
	InitiatedBy     *uuid.UUID
}

// Provision creates a new tenant: control-plane record, database role and
// physical database (when requested), tenant schema migration, and the
// bootstrap admin user. Exactly one provision log entry is written per
// attempt, success or failure. Already-created database objects are not
// rolled back on failure; the role/database steps are idempotent, so a retry
// under a fresh slug (or after removing the control-plane record) is safe.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (tenant.Tenant, error) {
	slug, err := persistence.NormalizeSlug(input.Slug)
	if err != nil {
		return tenant.Tenant{}, &ProvisionError{Err: err}
	}
	input.Slug = slug

	metadata := map[string]any{
		"db_name":         input.DBName,
		"db_user":         input.DBUser,
		"db_host":         input.DBHost,
		"db_port":         input.DBPort,
		"create_database": input.CreateDatabase,
	}

	t, err := s.provision(ctx, input)
	if err != nil {
		provErr := &ProvisionError{Err: err}
		s.recordLog(ctx, input, LogStatusFailure, provErr.Error(), metadata)
		return tenant.Tenant{}, provErr
	}

	metadata["tenant_id"] = t.ID.String()
	s.recordLog(ctx, input, LogStatusSuccess, "tenant provisioned", metadata)

	if s.deps.Events != nil {
		s.deps.Events.TenantProvisioned(ctx, t)
	}

	return t, nil
}

func (s *Service) provision(ctx context.Context, input ProvisionInput) (tenant.Tenant, error) {
	// Step 1: the control-plane schema itself must be current. Idempotent.
	if err := s.deps.Migrator.MigrateControlPlane(ctx); err != nil {
		return tenant.Tenant{}, fmt.Errorf("migrate control plane: %w", err)
	}

	// Step 2: insert the registry record. Slug and db_name collisions stop
	// the saga here, before any database object is touched.
	now := time.Now().UTC()
	currency := input.DefaultCurrency
	if currency == "" {
		currency = "MXN"
	}
	t, err := s.repo.Create(ctx, tenant.Tenant{
		ID:              uuid.New(),
		OrganizationID:  input.OrganizationID,
		Name:            input.Name,
		Slug:            input.Slug,
		DBName:          input.DBName,
		DBUser:          input.DBUser,
		DBPassword:      input.DBPassword,
		DBHost:          input.DBHost,
		DBPort:          input.DBPort,
		DefaultCurrency: currency,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("create tenant record: %w", err)
	}

	// Step 3: role and database, check-then-create.
	if input.CreateDatabase {
		if err := s.deps.DB.EnsureRole(ctx, input.DBUser, input.DBPassword); err != nil {
			return tenant.Tenant{}, fmt.Errorf("ensure role %s: %w", input.DBUser, err)
		}
		if err := s.deps.DB.EnsureDatabase(ctx, input.DBName, input.DBUser); err != nil {
			return tenant.Tenant{}, fmt.Errorf("ensure database %s: %w", input.DBName, err)
		}
	}

	// Step 4: migrate the tenant database under an active binding; the
	// binding is cleared whatever happens.
	if err := s.migrateTenant(ctx, t); err != nil {
		return tenant.Tenant{}, err
	}

	// Step 5: bootstrap admin user, upsert by email.
	if _, err := s.deps.Admin.UpsertAdmin(ctx, AdminBootstrapInput{
		Email:          input.AdminEmail,
		Password:       input.AdminPassword,
		FullName:       input.AdminName,
		TenantID:       t.ID,
		OrganizationID: input.OrganizationID,
	}); err != nil {
		return tenant.Tenant{}, fmt.Errorf("bootstrap admin user: %w", err)
	}

	return t, nil
}

func (s *Service) migrateTenant(ctx context.Context, t tenant.Tenant) error {
	actCtx, _, err := s.deps.Activator.Bind(ctx, t)
	if err != nil {
		return fmt.Errorf("activate tenant %s: %w", t.Slug, err)
	}
	defer s.deps.Activator.Clear(actCtx)

	if err := s.deps.Migrator.MigrateTenant(actCtx, t.Alias()); err != nil {
		return fmt.Errorf("migrate tenant database: %w", err)
	}
	return nil
}

// recordLog writes the audit entry for a provisioning attempt. A failure to
// write the log must not block the flow; it is logged and dropped.
func (s *Service) recordLog(ctx context.Context, input ProvisionInput, status, message string, metadata map[string]any) {
	if len(message) > maxLogMessageLen {
		message = message[:maxLogMessageLen]
	}

	entry := ProvisionLogEntry{
		Slug:        input.Slug,
		AdminEmail:  input.AdminEmail,
		Status:      status,
		Message:     message,
		Metadata:    metadata,
		InitiatedBy: input.InitiatedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		s.logger.Error("record provision log",
			zap.String("slug", input.Slug),
			zap.String("status", status),
			zap.Error(err))
	}
}
