package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
	"github.com/materialidadmx/materialidad-saas/platform/go/persistence"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

const tenantColumns = `id, organization_id, name, slug, db_name, db_user, db_password,
	db_host, db_port, default_currency, is_active, created_at, updated_at`

// PostgresRepository persists the tenant registry and the provision log in
// the control plane. Every query goes through the routed DB so the router is
// consulted per operation.
type PostgresRepository struct {
	db *persistence.RoutedDB
}

// NewPostgresRepository constructs a repository backed by the routed DB.
func NewPostgresRepository(db *persistence.RoutedDB) *PostgresRepository {
	if db == nil {
		panic("routed db is required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	err := r.db.WithEntity(ctx, persistence.EntityTenant, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tenants (`+tenantColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			t.ID, t.OrganizationID, t.Name, t.Slug, t.DBName, t.DBUser, t.DBPassword,
			t.DBHost, t.DBPort, t.DefaultCurrency, t.IsActive, t.CreatedAt, t.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return tenant.Tenant{}, mapConflict(err)
	}
	return t, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.WithEntity(ctx, persistence.EntityTenant, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
		return scanTenant(row, &t)
	})
	if err != nil {
		return tenant.Tenant{}, mapNotFound(err)
	}
	return t, nil
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.WithEntity(ctx, persistence.EntityTenant, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
		return scanTenant(row, &t)
	})
	if err != nil {
		return tenant.Tenant{}, mapNotFound(err)
	}
	return t, nil
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
	offset := (page - 1) * size

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if opts.OnlyActive {
		where = append(where, "is_active = TRUE")
	}
	if opts.Organization != nil {
		args = append(args, *opts.Organization)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var (
		tenants []tenant.Tenant
		total   int
	)
	err := r.db.WithEntity(ctx, persistence.EntityTenant, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM tenants`+clause, args...).Scan(&total); err != nil {
			return fmt.Errorf("count tenants: %w", err)
		}

		pagedArgs := append(args, size, offset)
		rows, err := tx.Query(ctx, fmt.Sprintf(
			`SELECT %s FROM tenants%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			tenantColumns, clause, len(args)+1, len(args)+2), pagedArgs...)
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t tenant.Tenant
			if err := scanTenant(rows, &t); err != nil {
				return err
			}
			tenants = append(tenants, t)
		}
		return rows.Err()
	})
	if err != nil {
		return service.ListResult{}, err
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{
		Tenants:    tenants,
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// Update writes only the mutable columns. Slug and database identity fields
// are structurally excluded, which is how immutability is enforced.
func (r *PostgresRepository) Update(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	err := r.db.WithEntity(ctx, persistence.EntityTenant, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tenants
			SET name = $2, default_currency = $3, organization_id = $4, updated_at = $5
			WHERE id = $1`,
			t.ID, t.Name, t.DefaultCurrency, t.OrganizationID, t.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return tenant.ErrTenantNotFound
		}
		return nil
	})
	if err != nil {
		return tenant.Tenant{}, err
	}
	return r.Get(ctx, t.ID)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.WithEntity(ctx, persistence.EntityTenant, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE tenants SET is_active = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+tenantColumns, id, active)
		return scanTenant(row, &t)
	})
	if err != nil {
		return tenant.Tenant{}, mapNotFound(err)
	}
	return t, nil
}

// Record appends a provision log entry. Entries are never updated.
func (r *PostgresRepository) Record(ctx context.Context, entry service.ProvisionLogEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode provision log metadata: %w", err)
	}

	return r.db.WithEntity(ctx, persistence.EntityProvisionLog, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO provision_logs (slug, admin_email, status, message, metadata, initiated_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entry.Slug, entry.AdminEmail, entry.Status, entry.Message, metadata, entry.InitiatedBy, entry.CreatedAt,
		)
		return err
	})
}

// ListLogs returns entries newest first, optionally filtered by slug.
func (r *PostgresRepository) ListLogs(ctx context.Context, slug string, limit int) ([]service.ProvisionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, slug, admin_email, status, message, metadata, initiated_by, created_at
		FROM provision_logs`
	args := []any{}
	if slug != "" {
		query += ` WHERE slug = $1`
		args = append(args, slug)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	var entries []service.ProvisionLogEntry
	err := r.db.WithEntity(ctx, persistence.EntityProvisionLog, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list provision logs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				entry    service.ProvisionLogEntry
				metadata []byte
			)
			if err := rows.Scan(&entry.ID, &entry.Slug, &entry.AdminEmail, &entry.Status,
				&entry.Message, &metadata, &entry.InitiatedBy, &entry.CreatedAt); err != nil {
				return fmt.Errorf("scan provision log: %w", err)
			}
			if len(metadata) > 0 {
				if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
					return fmt.Errorf("decode provision log metadata: %w", err)
				}
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner, t *tenant.Tenant) error {
	return row.Scan(
		&t.ID, &t.OrganizationID, &t.Name, &t.Slug, &t.DBName, &t.DBUser, &t.DBPassword,
		&t.DBHost, &t.DBPort, &t.DefaultCurrency, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return tenant.ErrTenantNotFound
	}
	return err
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.EqualFold(pgErr.ConstraintName, "tenants_slug_unique"):
			return service.ErrConflictSlug
		case strings.EqualFold(pgErr.ConstraintName, "tenants_db_name_unique"):
			return service.ErrConflictDBName
		}
	}
	return err
}

// Interface compliance.
var (
	_ service.Repository = (*PostgresRepository)(nil)
	_ service.LogStore   = (*PostgresRepository)(nil)
	_ tenant.Store       = (*PostgresRepository)(nil)
)
