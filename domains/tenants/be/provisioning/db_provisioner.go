package provisioning

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
)

// DBProvisioner creates per-tenant login roles and physical databases on the
// control-plane cluster. Both operations are check-then-create, so re-running
// a partially failed provision never aborts on an existing object.
type DBProvisioner struct {
	pool *pgxpool.Pool
}

func NewDBProvisioner(pool *pgxpool.Pool) *DBProvisioner {
	if pool == nil {
		panic("db provisioner requires pool")
	}
	return &DBProvisioner{pool: pool}
}

// EnsureRole creates a LOGIN role with the given password if it does not
// exist. An existing role is left untouched, password included.
func (p *DBProvisioner) EnsureRole(ctx context.Context, name, password string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("role name required")
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", name).Scan(&exists); err != nil {
		return fmt.Errorf("check role existence: %w", err)
	}
	if exists {
		return nil
	}

	// Role names and passwords cannot be bound parameters in DDL.
	roleSQL := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s",
		pgx.Identifier{name}.Sanitize(), quoteLiteral(password))
	if _, err := conn.Exec(ctx, roleSQL); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// EnsureDatabase creates the database owned by the given role if it does not
// exist. CREATE DATABASE cannot run inside a transaction, so this executes on
// a bare acquired connection.
func (p *DBProvisioner) EnsureDatabase(ctx context.Context, name, owner string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("database name required")
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return fmt.Errorf("database owner required")
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists); err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}

	createSQL := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pgx.Identifier{name}.Sanitize(), pgx.Identifier{owner}.Sanitize())
	if _, err := conn.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

// quoteLiteral wraps a string as a single-quoted SQL literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var _ service.DBProvisioner = (*DBProvisioner)(nil)
