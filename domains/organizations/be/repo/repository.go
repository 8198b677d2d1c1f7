package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/materialidadmx/materialidad-saas/domains/organizations/be/service"
	"github.com/materialidadmx/materialidad-saas/platform/go/persistence"
)

const orgColumns = `id, name, kind, contact_email, contact_phone, notes, is_active, created_at, updated_at`

// PostgresRepository stores organizations in the control plane.
type PostgresRepository struct {
	db *persistence.RoutedDB
}

func NewPostgresRepository(db *persistence.RoutedDB) *PostgresRepository {
	if db == nil {
		panic("routed db is required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, org service.Organization) (service.Organization, error) {
	err := r.db.WithEntity(ctx, persistence.EntityOrganization, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO organizations (`+orgColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			org.ID, org.Name, org.Kind, org.ContactEmail, org.ContactPhone,
			org.Notes, org.IsActive, org.CreatedAt, org.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return service.Organization{}, err
	}
	return org, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Organization, error) {
	var org service.Organization
	err := r.db.WithEntity(ctx, persistence.EntityOrganization, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id)
		return scanOrg(row, &org)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Organization{}, service.ErrNotFound
		}
		return service.Organization{}, err
	}
	return org, nil
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if opts.Kind != "" {
		args = append(args, opts.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if strings.TrimSpace(opts.Search) != "" {
		args = append(args, "%"+strings.TrimSpace(opts.Search)+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var (
		orgs  []service.Organization
		total int
	)
	err := r.db.WithEntity(ctx, persistence.EntityOrganization, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM organizations`+clause, args...).Scan(&total); err != nil {
			return fmt.Errorf("count organizations: %w", err)
		}

		pagedArgs := append(args, size, (page-1)*size)
		rows, err := tx.Query(ctx, fmt.Sprintf(
			`SELECT %s FROM organizations%s ORDER BY name LIMIT $%d OFFSET $%d`,
			orgColumns, clause, len(args)+1, len(args)+2), pagedArgs...)
		if err != nil {
			return fmt.Errorf("list organizations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var org service.Organization
			if err := scanOrg(rows, &org); err != nil {
				return err
			}
			orgs = append(orgs, org)
		}
		return rows.Err()
	})
	if err != nil {
		return service.ListResult{}, err
	}

	return service.ListResult{
		Organizations: orgs,
		Page:          page,
		PageSize:      size,
		TotalItems:    total,
		TotalPages:    (total + size - 1) / size,
	}, nil
}

func (r *PostgresRepository) Update(ctx context.Context, org service.Organization) (service.Organization, error) {
	err := r.db.WithEntity(ctx, persistence.EntityOrganization, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE organizations
			SET name = $2, contact_email = $3, contact_phone = $4, notes = $5,
				is_active = $6, updated_at = $7
			WHERE id = $1`,
			org.ID, org.Name, org.ContactEmail, org.ContactPhone, org.Notes,
			org.IsActive, org.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return service.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return service.Organization{}, err
	}
	return org, nil
}

func scanOrg(row pgx.Row, org *service.Organization) error {
	return row.Scan(
		&org.ID, &org.Name, &org.Kind, &org.ContactEmail, &org.ContactPhone,
		&org.Notes, &org.IsActive, &org.CreatedAt, &org.UpdatedAt,
	)
}

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]service.Organization
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.Organization)}
}

func (r *MemoryRepository) Create(_ context.Context, org service.Organization) (service.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[org.ID] = org
	return org, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (service.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.byID[id]
	if !ok {
		return service.Organization{}, service.ErrNotFound
	}
	return org, nil
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

	matched := make([]service.Organization, 0, len(r.byID))
	for _, org := range r.byID {
		if opts.Kind != "" && org.Kind != opts.Kind {
			continue
		}
		if opts.Search != "" && !strings.Contains(
			strings.ToLower(org.Name), strings.ToLower(opts.Search)) {
			continue
		}
		matched = append(matched, org)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

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
		Organizations: matched[start:end],
		Page:          page,
		PageSize:      size,
		TotalItems:    total,
		TotalPages:    (total + size - 1) / size,
	}, nil
}

func (r *MemoryRepository) Update(_ context.Context, org service.Organization) (service.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[org.ID]; !ok {
		return service.Organization{}, service.ErrNotFound
	}
	r.byID[org.ID] = org
	return org, nil
}

var (
	_ service.Repository = (*PostgresRepository)(nil)
	_ service.Repository = (*MemoryRepository)(nil)
)
