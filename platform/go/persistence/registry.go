package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ControlPlaneAlias identifies the always-available control-plane database.
const ControlPlaneAlias = "default"

// PoolOpener opens a pool for a DSN. The default opener is lazy: it parses and
// validates the DSN but leaves the first physical connection to first use.
type PoolOpener func(ctx context.Context, connString string) (*pgxpool.Pool, error)

func lazyOpener(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Registry is the process-wide catalog of database aliases and their pools.
// Registration is race-safe under concurrent first use of the same alias.
type Registry struct {
	mu     sync.RWMutex
	pools  map[string]*pgxpool.Pool
	opener PoolOpener
}

// NewRegistry constructs a Registry seeded with the control-plane pool.
func NewRegistry(controlPlane *pgxpool.Pool) *Registry {
	if controlPlane == nil {
		panic("registry requires control-plane pool")
	}
	return &Registry{
		pools:  map[string]*pgxpool.Pool{ControlPlaneAlias: controlPlane},
		opener: lazyOpener,
	}
}

// SetOpener overrides the pool opener. Intended for tests.
func (r *Registry) SetOpener(opener PoolOpener) {
	if opener == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opener = opener
}

// EnsureAlias registers a pool for alias if one is not registered yet.
// Concurrent callers racing on the same alias are serialized; only one pool is
// ever opened per alias.
func (r *Registry) EnsureAlias(ctx context.Context, alias, connString string) error {
	if alias == "" {
		return fmt.Errorf("alias is required")
	}

	r.mu.RLock()
	_, ok := r.pools[alias]
	r.mu.RUnlock()
	if ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[alias]; ok {
		return nil
	}

	pool, err := r.opener(ctx, connString)
	if err != nil {
		return fmt.Errorf("open pool for alias %s: %w", alias, err)
	}
	r.pools[alias] = pool
	return nil
}

// Pool returns the pool registered under alias.
func (r *Registry) Pool(alias string) (*pgxpool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[alias]
	return pool, ok
}

// ControlPlane returns the control-plane pool.
func (r *Registry) ControlPlane() *pgxpool.Pool {
	pool, _ := r.Pool(ControlPlaneAlias)
	return pool
}

// Aliases returns the registered alias names.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pools))
	for alias := range r.pools {
		out = append(out, alias)
	}
	return out
}

// CloseAlias closes and removes a single tenant pool. The control-plane pool
// cannot be evicted.
func (r *Registry) CloseAlias(alias string) {
	if alias == ControlPlaneAlias {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.pools[alias]; ok {
		pool.Close()
		delete(r.pools, alias)
	}
}

// Close shuts down every registered pool, control plane included.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for alias, pool := range r.pools {
		pool.Close()
		delete(r.pools, alias)
	}
}
