package tenant

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Errors surfaced by tenant resolution. Middleware converts these into
// client-facing responses (404 / 403).
var (
	// ErrTenantNotFound is returned when a slug does not resolve to any tenant record.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantNotActive is returned when the tenant exists but has been deactivated.
	ErrTenantNotActive = errors.New("tenant not active")
)

// AliasPrefix is prepended to the tenant slug to form the database alias.
const AliasPrefix = "tenant_"

// Tenant is the control-plane registry record for a single tenant.
// Slug and the database identity fields (DBName, DBHost, DBPort, DBUser) are
// immutable once assigned; changing them after creation would orphan data.
type Tenant struct {
	ID              uuid.UUID
	OrganizationID  *uuid.UUID
	Name            string
	Slug            string
	DBName          string
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          int
	DefaultCurrency string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Alias returns the deterministic database alias for this tenant, e.g. "tenant_acme".
func (t Tenant) Alias() string {
	return AliasPrefix + t.Slug
}

// ConnString builds the DSN for the tenant's physical database.
func (t Tenant) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(t.DBUser, t.DBPassword),
		Host:   fmt.Sprintf("%s:%d", t.DBHost, t.DBPort),
		Path:   "/" + t.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}
