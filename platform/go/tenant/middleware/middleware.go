package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	platformauth "github.com/materialidadmx/materialidad-saas/platform/go/auth"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// DefaultHeader carries the tenant slug when no token claim is used.
const DefaultHeader = "X-Tenant-Slug"

// Config controls middleware behavior.
type Config struct {
	// Header overrides the tenant slug header name; empty means DefaultHeader.
	Header string
	// Require rejects requests that carry no resolvable tenant slug.
	Require bool
	// Optional small in-memory TTL cache to avoid control-plane hits per
	// request; zero disables caching.
	CacheTTL time.Duration
}

// WithTenant resolves the tenant slug from the request header or the bearer
// token claim, activates the tenant binding for the duration of the request,
// and guarantees the binding is cleared afterwards. Resolution failures are
// converted to client responses here and never reach the handlers.
func WithTenant(activator *tenant.Activator, cfg Config) func(http.Handler) http.Handler {
	if activator == nil {
		panic("tenant middleware: activator is required")
	}

	header := cfg.Header
	if header == "" {
		header = DefaultHeader
	}

	var cache *tenantCache
	if cfg.CacheTTL > 0 {
		cache = newTenantCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := r.Header.Get(header)
			if slug == "" {
				if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
					slug = creds.TenantSlug
				}
			}

			if slug == "" {
				if cfg.Require {
					writeDetail(w, http.StatusBadRequest, "tenant is required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			var (
				err error
				t   tenant.Tenant
			)
			if cached, ok := cache.get(slug); ok {
				ctx, t, err = activator.Bind(ctx, cached)
			} else {
				ctx, t, err = activator.Activate(ctx, slug)
			}
			if err != nil {
				switch {
				case errors.Is(err, tenant.ErrTenantNotFound):
					writeDetail(w, http.StatusNotFound, "tenant not found")
				case errors.Is(err, tenant.ErrTenantNotActive):
					writeDetail(w, http.StatusForbidden, "tenant not active")
				default:
					writeDetail(w, http.StatusInternalServerError, "tenant activation failed")
				}
				return
			}

			cache.put(t)

			// The binding lives on the derived context only; once the handler
			// returns, the request context is discarded, so no tenant state can
			// bleed into another request. Clear is still called for symmetry
			// with non-HTTP units of work.
			defer activator.Clear(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

type tenantCache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]cacheItem
}

type cacheItem struct {
	tenant    tenant.Tenant
	expiresAt time.Time
}

func newTenantCache(ttl time.Duration) *tenantCache {
	return &tenantCache{ttl: ttl, items: make(map[string]cacheItem)}
}

func (c *tenantCache) get(slug string) (tenant.Tenant, bool) {
	if c == nil {
		return tenant.Tenant{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[slug]
	if !ok || time.Now().After(item.expiresAt) {
		return tenant.Tenant{}, false
	}
	return item.tenant, true
}

func (c *tenantCache) put(t tenant.Tenant) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[t.Slug] = cacheItem{tenant: t, expiresAt: time.Now().Add(c.ttl)}
}
