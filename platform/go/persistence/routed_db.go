package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RoutedDB executes transactional closures against whichever database the
// Router selects for an entity kind. Every repository read/write goes through
// here, so routing is consulted on each query rather than once per request.
type RoutedDB struct {
	registry *Registry
	router   *Router
}

// NewRoutedDB constructs a RoutedDB.
func NewRoutedDB(registry *Registry, router *Router) *RoutedDB {
	if registry == nil {
		panic("RoutedDB requires registry")
	}
	if router == nil {
		panic("RoutedDB requires router")
	}
	return &RoutedDB{registry: registry, router: router}
}

// Router exposes the underlying router, mainly for migration guards.
func (db *RoutedDB) Router() *Router {
	return db.router
}

// Registry exposes the underlying registry.
func (db *RoutedDB) Registry() *Registry {
	return db.registry
}

// WithEntity runs fn inside a transaction on the database routed for entity.
func (db *RoutedDB) WithEntity(ctx context.Context, entity string, fn func(tx pgx.Tx) error) error {
	alias, err := db.router.AliasFor(ctx, entity)
	if err != nil {
		return err
	}
	return db.withAlias(ctx, alias, fn)
}

// WithControlPlane runs fn inside a transaction on the control-plane database.
func (db *RoutedDB) WithControlPlane(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.withAlias(ctx, ControlPlaneAlias, fn)
}

func (db *RoutedDB) withAlias(ctx context.Context, alias string, fn func(tx pgx.Tx) error) error {
	pool, ok := db.registry.Pool(alias)
	if !ok {
		return fmt.Errorf("no pool registered for alias %s", alias)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
