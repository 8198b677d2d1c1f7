package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// MemoryRepository is an in-memory Repository and LogStore used by tests and
// local tooling. Safe for concurrent use.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]tenant.Tenant
	logs    []service.ProvisionLogEntry
	nextLog int64
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[uuid.UUID]tenant.Tenant),
		nextLog: 1,
	}
}

func (r *MemoryRepository) Create(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Slug == t.Slug {
			return tenant.Tenant{}, service.ErrConflictSlug
		}
		if existing.DBName == t.DBName {
			return tenant.Tenant{}, service.ErrConflictDBName
		}
	}
	r.byID[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (r *MemoryRepository) FindBySlug(_ context.Context, slug string) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.byID {
		if t.Slug == slug {
			return t, nil
		}
	}
	return tenant.Tenant{}, tenant.ErrTenantNotFound
}

func (r *MemoryRepository) List(_ context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}

	matched := make([]tenant.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		if opts.OnlyActive && !t.IsActive {
			continue
		}
		if opts.Organization != nil {
			if t.OrganizationID == nil || *t.OrganizationID != *opts.Organization {
				continue
			}
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	return service.ListResult{
		Tenants:    matched[start:end],
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}, nil
}

func (r *MemoryRepository) Update(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[t.ID]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}

	current.Name = t.Name
	current.DefaultCurrency = t.DefaultCurrency
	current.OrganizationID = t.OrganizationID
	current.UpdatedAt = t.UpdatedAt
	r.byID[t.ID] = current
	return current, nil
}

func (r *MemoryRepository) SetActive(_ context.Context, id uuid.UUID, active bool) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	t.IsActive = active
	r.byID[id] = t
	return t, nil
}

func (r *MemoryRepository) Record(_ context.Context, entry service.ProvisionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.ID = r.nextLog
	r.nextLog++
	r.logs = append(r.logs, entry)
	return nil
}

func (r *MemoryRepository) ListLogs(_ context.Context, slug string, limit int) ([]service.ProvisionLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	entries := make([]service.ProvisionLogEntry, 0, len(r.logs))
	for i := len(r.logs) - 1; i >= 0 && len(entries) < limit; i-- {
		if slug != "" && r.logs[i].Slug != slug {
			continue
		}
		entries = append(entries, r.logs[i])
	}
	return entries, nil
}

var (
	_ service.Repository = (*MemoryRepository)(nil)
	_ service.LogStore   = (*MemoryRepository)(nil)
	_ tenant.Store       = (*MemoryRepository)(nil)
)
