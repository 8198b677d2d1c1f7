package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	// ErrNotFound aliases the platform sentinel so callers can match either.
	ErrNotFound = tenant.ErrTenantNotFound

	ErrConflictSlug   = errors.New("tenant slug already exists")
	ErrConflictDBName = errors.New("tenant database name already exists")

	// ErrImmutableField is returned when an update touches the slug or the
	// database identity fields, which never change after creation.
	ErrImmutableField = errors.New("tenant identity fields are immutable")
)

// Log entry status values. Entries are append-only and written exactly once
// per provisioning attempt.
const (
	LogStatusSuccess = "success"
	LogStatusFailure = "failure"
)

// ProvisionLogEntry is the durable audit record of a provisioning attempt.
type ProvisionLogEntry struct {
	ID          int64
	Slug        string
	AdminEmail  string
	Status      string
	Message     string
	Metadata    map[string]any
	InitiatedBy *uuid.UUID
	CreatedAt   time.Time
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page         int
	PageSize     int
	OnlyActive   bool
	Organization *uuid.UUID
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []tenant.Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// UpdateInput represents the mutable fields of a tenant. Slug and database
// identity are deliberately absent.
type UpdateInput struct {
	Name            *string
	DefaultCurrency *string
	OrganizationID  *uuid.UUID
}

// Repository abstracts control-plane persistence of the tenant registry.
type Repository interface {
	Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (tenant.Tenant, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (tenant.Tenant, error)
}

// LogStore abstracts the append-only provision log.
type LogStore interface {
	Record(ctx context.Context, entry ProvisionLogEntry) error
	ListLogs(ctx context.Context, slug string, limit int) ([]ProvisionLogEntry, error)
}

// Service provides tenant registry operations on top of the repository.
// Provisioning lives in provision.go.
type Service struct {
	repo   Repository
	logs   LogStore
	deps   ProvisioningDeps
	logger *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, logs LogStore, deps ProvisioningDeps, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if logs == nil {
		panic("provision log store is required")
	}
	deps.validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logs: logs, deps: deps, logger: logger}
}

// List tenants with optional filters.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.repo.Get(ctx, id)
}

// FindBySlug returns a tenant by slug.
func (s *Service) FindBySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	return s.repo.FindBySlug(ctx, slug)
}

// Update modifies mutable fields of a tenant. Slug and database identity are
// immutable once assigned.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (tenant.Tenant, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return tenant.Tenant{}, err
	}

	next := current
	if input.Name != nil {
		next.Name = *input.Name
	}
	if input.DefaultCurrency != nil {
		next.DefaultCurrency = *input.DefaultCurrency
	}
	if input.OrganizationID != nil {
		next.OrganizationID = input.OrganizationID
	}
	next.UpdatedAt = time.Now().UTC()

	return s.repo.Update(ctx, next)
}

// Deactivate soft-disables a tenant. Subsequent activations fail with
// ErrTenantNotActive; the tenant database is left untouched.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.repo.SetActive(ctx, id, false)
}

// Reactivate re-enables a previously deactivated tenant.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.repo.SetActive(ctx, id, true)
}

// Logs lists provision log entries, optionally filtered by slug.
func (s *Service) Logs(ctx context.Context, slug string, limit int) ([]ProvisionLogEntry, error) {
	return s.logs.ListLogs(ctx, slug, limit)
}
