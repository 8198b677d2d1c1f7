package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	sqlassets "github.com/materialidadmx/materialidad-saas/database"
)

const (
	controlMigrationsDir = "migrations/control"
	tenantMigrationsDir  = "migrations/tenant"
)

// goose keeps the base FS and dialect as package state; serialize access.
var gooseMu sync.Mutex

// Migrator applies embedded goose migrations to the control-plane database and
// to per-tenant databases, honoring the router's migration guard.
type Migrator struct {
	registry *Registry
	router   *Router
	logger   *zap.Logger
}

// NewMigrator constructs a Migrator.
func NewMigrator(registry *Registry, router *Router, logger *zap.Logger) *Migrator {
	if registry == nil {
		panic("migrator requires registry")
	}
	if router == nil {
		panic("migrator requires router")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{registry: registry, router: router, logger: logger}
}

// MigrateControlPlane applies the control-plane schema. Idempotent.
func (m *Migrator) MigrateControlPlane(ctx context.Context) error {
	pool := m.registry.ControlPlane()
	if pool == nil {
		return fmt.Errorf("control-plane pool is not registered")
	}
	if !m.router.AllowMigrate(ctx, ControlPlaneAlias, EntityTenant) {
		return fmt.Errorf("control-plane migration not allowed for alias %s", ControlPlaneAlias)
	}
	return m.up(ctx, pool, controlMigrationsDir)
}

// MigrateTenant applies the tenant schema against the given alias. The tenant
// migration set is tenant-scoped, so the router only allows it against the
// currently-active tenant alias (or the control plane when no binding exists).
func (m *Migrator) MigrateTenant(ctx context.Context, alias string) error {
	if !m.router.AllowMigrate(ctx, alias, EntityEmpresa) {
		return fmt.Errorf("tenant migration not allowed for alias %s", alias)
	}

	pool, ok := m.registry.Pool(alias)
	if !ok {
		return fmt.Errorf("no pool registered for alias %s", alias)
	}
	return m.up(ctx, pool, tenantMigrationsDir)
}

// up bridges the pgx pool to database/sql, which is what goose expects.
func (m *Migrator) up(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			m.logger.Error("close migration db handle", zap.Error(err))
		}
	}(db)

	goose.SetLogger(&gooseZapAdapter{logger: m.logger})
	goose.SetBaseFS(sqlassets.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("apply migrations from %s: %w", dir, err)
	}
	return nil
}

// gooseZapAdapter routes goose's Printf-style logging through zap.
type gooseZapAdapter struct {
	logger *zap.Logger
}

func (a *gooseZapAdapter) Fatalf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *gooseZapAdapter) Printf(format string, v ...any) {
	a.logger.Info(fmt.Sprintf(format, v...))
}
