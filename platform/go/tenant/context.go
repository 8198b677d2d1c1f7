package tenant

import (
	"context"
)

// Binding captures the resolved tenant and its database alias for one unit of
// work (typically a single inbound request). It is attached to the context by
// the Activator once the tenant has been resolved from the header/claims and
// is never shared across concurrent units of work.
type Binding struct {
	Tenant Tenant
	Alias  string
}

type ctxKey string

const bindingKey ctxKey = "MATERIALIDAD_TENANT_BINDING"

// WithBinding returns a derived context carrying the tenant Binding.
func WithBinding(ctx context.Context, b Binding) context.Context {
	return context.WithValue(ctx, bindingKey, b)
}

// FromContext extracts the tenant Binding and a boolean indicating presence.
func FromContext(ctx context.Context) (Binding, bool) {
	v := ctx.Value(bindingKey)
	if v == nil {
		return Binding{}, false
	}

	b, ok := v.(Binding)
	return b, ok
}

// Current returns the tenant bound to the context, if any.
func Current(ctx context.Context) (Tenant, bool) {
	b, ok := FromContext(ctx)
	if !ok {
		return Tenant{}, false
	}
	return b.Tenant, true
}

// CurrentAlias returns the database alias bound to the context, if any.
func CurrentAlias(ctx context.Context) (string, bool) {
	b, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	return b.Alias, true
}
