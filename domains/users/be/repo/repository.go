package repo

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/materialidadmx/materialidad-saas/domains/users/be/service"
	"github.com/materialidadmx/materialidad-saas/platform/go/persistence"
)

const userColumns = `id, email, full_name, password_hash, is_staff, is_superuser,
	tenant_id, organization_id, created_at, updated_at`

// PostgresRepository stores users in the control plane.
type PostgresRepository struct {
	db *persistence.RoutedDB
}

func NewPostgresRepository(db *persistence.RoutedDB) *PostgresRepository {
	if db == nil {
		panic("routed db is required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec service.Record) (service.Record, error) {
	var out service.Record
	err := r.db.WithEntity(ctx, persistence.EntityUser, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO users (`+userColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT ON CONSTRAINT users_email_unique DO UPDATE SET
				full_name = EXCLUDED.full_name,
				password_hash = EXCLUDED.password_hash,
				is_staff = EXCLUDED.is_staff,
				is_superuser = EXCLUDED.is_superuser,
				tenant_id = EXCLUDED.tenant_id,
				organization_id = EXCLUDED.organization_id,
				updated_at = EXCLUDED.updated_at
			RETURNING `+userColumns,
			rec.ID, rec.Email, rec.FullName, rec.PasswordHash, rec.IsStaff, rec.IsSuperuser,
			rec.TenantID, rec.OrganizationID, rec.CreatedAt, rec.UpdatedAt,
		)
		return scanRecord(row, &out)
	})
	if err != nil {
		return service.Record{}, err
	}
	return out, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (service.Record, error) {
	var out service.Record
	err := r.db.WithEntity(ctx, persistence.EntityUser, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
		return scanRecord(row, &out)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Record{}, service.ErrNotFound
		}
		return service.Record{}, err
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Record, error) {
	var out service.Record
	err := r.db.WithEntity(ctx, persistence.EntityUser, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
		return scanRecord(row, &out)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Record{}, service.ErrNotFound
		}
		return service.Record{}, err
	}
	return out, nil
}

func scanRecord(row pgx.Row, rec *service.Record) error {
	return row.Scan(
		&rec.ID, &rec.Email, &rec.FullName, &rec.PasswordHash, &rec.IsStaff, &rec.IsSuperuser,
		&rec.TenantID, &rec.OrganizationID, &rec.CreatedAt, &rec.UpdatedAt,
	)
}

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byEmail map[string]service.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byEmail: make(map[string]service.Record)}
}

func (r *MemoryRepository) Upsert(_ context.Context, rec service.Record) (service.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byEmail[rec.Email]; ok {
		existing.FullName = rec.FullName
		existing.PasswordHash = rec.PasswordHash
		existing.IsStaff = rec.IsStaff
		existing.IsSuperuser = rec.IsSuperuser
		existing.TenantID = rec.TenantID
		existing.OrganizationID = rec.OrganizationID
		existing.UpdatedAt = rec.UpdatedAt
		r.byEmail[rec.Email] = existing
		return existing, nil
	}
	r.byEmail[rec.Email] = rec
	return rec, nil
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (service.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byEmail[email]
	if !ok {
		return service.Record{}, service.ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (service.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.byEmail {
		if rec.ID == id {
			return rec, nil
		}
	}
	return service.Record{}, service.ErrNotFound
}

var (
	_ service.Repository = (*PostgresRepository)(nil)
	_ service.Repository = (*MemoryRepository)(nil)
)
