package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tenantsvc "github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
)

// Organization kinds. A despacho is an accounting firm managing several
// client tenants; a corporativo owns a single tenant for itself.
const (
	KindDespacho    = "despacho"
	KindCorporativo = "corporativo"
)

// Domain sentinel errors.
var (
	ErrNotFound    = errors.New("organization not found")
	ErrInvalidKind = errors.New("invalid organization kind")
)

// Organization groups tenants under one commercial owner.
type Organization struct {
	ID           uuid.UUID
	Name         string
	Kind         string
	ContactEmail string
	ContactPhone string
	Notes        string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stats summarizes the tenants attached to an organization.
type Stats struct {
	TotalTenants    int
	ActiveTenants   int
	InactiveTenants int
}

// ListOptions captures filters and pagination for organization listing.
type ListOptions struct {
	Page     int
	PageSize int
	Kind     string
	Search   string
}

// ListResult wraps a page of organizations.
type ListResult struct {
	Organizations []Organization
	Page          int
	PageSize      int
	TotalItems    int
	TotalPages    int
}

// CreateInput is the payload for a new organization.
type CreateInput struct {
	Name         string
	Kind         string
	ContactEmail string
	ContactPhone string
	Notes        string
}

// UpdateInput holds the mutable fields; nil means keep the current value.
type UpdateInput struct {
	Name         *string
	ContactEmail *string
	ContactPhone *string
	Notes        *string
	IsActive     *bool
}

// Repository abstracts control-plane persistence of organizations.
type Repository interface {
	Create(ctx context.Context, org Organization) (Organization, error)
	Get(ctx context.Context, id uuid.UUID) (Organization, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, org Organization) (Organization, error)
}

// TenantLister exposes the slice of the tenant registry this domain needs.
type TenantLister interface {
	List(ctx context.Context, opts tenantsvc.ListOptions) (tenantsvc.ListResult, error)
}

// Service provides organization operations.
type Service struct {
	repo    Repository
	tenants TenantLister
	logger  *zap.Logger
}

// New constructs an organizations Service.
func New(repo Repository, tenants TenantLister, logger *zap.Logger) *Service {
	if repo == nil {
		panic("organizations repository is required")
	}
	if tenants == nil {
		panic("tenant lister is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, tenants: tenants, logger: logger}
}

// Create registers a new organization. Kind defaults to despacho.
func (s *Service) Create(ctx context.Context, input CreateInput) (Organization, error) {
	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		kind = KindDespacho
	}
	if kind != KindDespacho && kind != KindCorporativo {
		return Organization{}, ErrInvalidKind
	}

	now := time.Now().UTC()
	return s.repo.Create(ctx, Organization{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(input.Name),
		Kind:         kind,
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		ContactPhone: strings.TrimSpace(input.ContactPhone),
		Notes:        input.Notes,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// Get returns an organization by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Organization, error) {
	return s.repo.Get(ctx, id)
}

// List organizations with optional kind and name search filters.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if opts.Kind != "" && opts.Kind != KindDespacho && opts.Kind != KindCorporativo {
		return ListResult{}, ErrInvalidKind
	}
	return s.repo.List(ctx, opts)
}

// Update modifies the mutable fields. Kind never changes after creation.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Organization, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Organization{}, err
	}

	next := current
	if input.Name != nil {
		next.Name = strings.TrimSpace(*input.Name)
	}
	if input.ContactEmail != nil {
		next.ContactEmail = strings.TrimSpace(*input.ContactEmail)
	}
	if input.ContactPhone != nil {
		next.ContactPhone = strings.TrimSpace(*input.ContactPhone)
	}
	if input.Notes != nil {
		next.Notes = *input.Notes
	}
	if input.IsActive != nil {
		next.IsActive = *input.IsActive
	}
	next.UpdatedAt = time.Now().UTC()

	return s.repo.Update(ctx, next)
}

// Tenants lists the tenants attached to an organization.
func (s *Service) Tenants(ctx context.Context, id uuid.UUID, page, pageSize int) (tenantsvc.ListResult, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return tenantsvc.ListResult{}, err
	}
	return s.tenants.List(ctx, tenantsvc.ListOptions{
		Page:         page,
		PageSize:     pageSize,
		Organization: &id,
	})
}

// TenantStats counts active and inactive tenants for an organization.
func (s *Service) TenantStats(ctx context.Context, id uuid.UUID) (Stats, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Stats{}, err
	}

	var (
		stats Stats
		page  = 1
	)
	for {
		result, err := s.tenants.List(ctx, tenantsvc.ListOptions{
			Page:         page,
			PageSize:     100,
			Organization: &id,
		})
		if err != nil {
			return Stats{}, err
		}
		for _, t := range result.Tenants {
			stats.TotalTenants++
			if t.IsActive {
				stats.ActiveTenants++
			} else {
				stats.InactiveTenants++
			}
		}
		if page >= result.TotalPages || len(result.Tenants) == 0 {
			break
		}
		page++
	}
	return stats, nil
}
