package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// memStore is a combined in-memory Repository, LogStore and tenant.Store.
type memStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]tenant.Tenant
	logs []ProvisionLogEntry

	createErr error
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[uuid.UUID]tenant.Tenant)}
}

func (m *memStore) Create(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return tenant.Tenant{}, m.createErr
	}
	for _, existing := range m.byID {
		if existing.Slug == t.Slug {
			return tenant.Tenant{}, ErrConflictSlug
		}
		if existing.DBName == t.DBName {
			return tenant.Tenant{}, ErrConflictDBName
		}
	}
	m.byID[t.ID] = t
	return t, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (m *memStore) FindBySlug(_ context.Context, slug string) (tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byID {
		if t.Slug == slug {
			return t, nil
		}
	}
	return tenant.Tenant{}, tenant.ErrTenantNotFound
}

func (m *memStore) List(_ context.Context, _ ListOptions) (ListResult, error) {
	return ListResult{}, nil
}

func (m *memStore) Update(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[t.ID] = t
	return t, nil
}

func (m *memStore) SetActive(_ context.Context, id uuid.UUID, active bool) (tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	t.IsActive = active
	m.byID[id] = t
	return t, nil
}

func (m *memStore) Record(_ context.Context, entry ProvisionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memStore) ListLogs(_ context.Context, slug string, _ int) ([]ProvisionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ProvisionLogEntry
	for _, e := range m.logs {
		if slug == "" || e.Slug == slug {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubRegistrar struct {
	aliases []string
}

func (s *stubRegistrar) EnsureAlias(_ context.Context, alias, _ string) error {
	s.aliases = append(s.aliases, alias)
	return nil
}

type stubDBProvisioner struct {
	roles     []string
	databases []string
	roleErr   error
	dbErr     error
}

func (s *stubDBProvisioner) EnsureRole(_ context.Context, name, _ string) error {
	if s.roleErr != nil {
		return s.roleErr
	}
	s.roles = append(s.roles, name)
	return nil
}

func (s *stubDBProvisioner) EnsureDatabase(_ context.Context, name, _ string) error {
	if s.dbErr != nil {
		return s.dbErr
	}
	s.databases = append(s.databases, name)
	return nil
}

type stubMigrator struct {
	controlCalls  int
	tenantAliases []string
	tenantErr     error

	// captures whether the binding was active during MigrateTenant
	sawBinding bool
}

func (s *stubMigrator) MigrateControlPlane(_ context.Context) error {
	s.controlCalls++
	return nil
}

func (s *stubMigrator) MigrateTenant(ctx context.Context, alias string) error {
	if _, ok := tenant.FromContext(ctx); ok {
		s.sawBinding = true
	}
	if s.tenantErr != nil {
		return s.tenantErr
	}
	s.tenantAliases = append(s.tenantAliases, alias)
	return nil
}

type stubAdmin struct {
	inputs []AdminBootstrapInput
	err    error
}

func (s *stubAdmin) UpsertAdmin(_ context.Context, input AdminBootstrapInput) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	s.inputs = append(s.inputs, input)
	return uuid.New(), nil
}

type provisionFixture struct {
	store    *memStore
	db       *stubDBProvisioner
	migrator *stubMigrator
	admin    *stubAdmin
	svc      *Service
}

func newProvisionFixture(t *testing.T) *provisionFixture {
	t.Helper()

	store := newMemStore()
	db := &stubDBProvisioner{}
	migrator := &stubMigrator{}
	admin := &stubAdmin{}

	svc := New(store, store, ProvisioningDeps{
		Activator: tenant.NewActivator(store, &stubRegistrar{}, nil),
		DB:        db,
		Migrator:  migrator,
		Admin:     admin,
	}, nil)

	return &provisionFixture{store: store, db: db, migrator: migrator, admin: admin, svc: svc}
}

func validInput() ProvisionInput {
	return ProvisionInput{
		Name:           "Acme SA de CV",
		Slug:           "Acme-MX",
		DBName:         "tenant_acme",
		DBUser:         "tenant_acme_user",
		DBPassword:     "s3cret",
		DBHost:         "localhost",
		DBPort:         5432,
		AdminEmail:     "admin@acme.mx",
		AdminPassword:  "changeme",
		AdminName:      "Acme Admin",
		CreateDatabase: true,
	}
}

func TestProvisionSuccess(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	ctx := context.Background()

	created, err := f.svc.Provision(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, "acme-mx", created.Slug)
	require.Equal(t, "tenant_acme-mx", created.Alias())
	require.Equal(t, "MXN", created.DefaultCurrency)
	require.True(t, created.IsActive)

	require.Equal(t, 1, f.migrator.controlCalls)
	require.Equal(t, []string{"tenant_acme_user"}, f.db.roles)
	require.Equal(t, []string{"tenant_acme"}, f.db.databases)
	require.Equal(t, []string{created.Alias()}, f.migrator.tenantAliases)
	require.True(t, f.migrator.sawBinding, "tenant migration must run under an active binding")

	require.Len(t, f.admin.inputs, 1)
	require.Equal(t, created.ID, f.admin.inputs[0].TenantID)

	logs, err := f.svc.Logs(ctx, "acme-mx", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, LogStatusSuccess, logs[0].Status)
	require.Equal(t, created.ID.String(), logs[0].Metadata["tenant_id"])
}

func TestProvisionSkipsDatabaseCreationWhenDisabled(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	input := validInput()
	input.CreateDatabase = false

	_, err := f.svc.Provision(context.Background(), input)
	require.NoError(t, err)
	require.Empty(t, f.db.roles)
	require.Empty(t, f.db.databases)
	require.Len(t, f.migrator.tenantAliases, 1)
}

func TestProvisionDuplicateSlugWritesFailureLog(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Provision(ctx, validInput())
	require.NoError(t, err)

	input := validInput()
	input.DBName = "tenant_other"
	input.DBUser = "tenant_other_user"
	_, err = f.svc.Provision(ctx, input)
	require.Error(t, err)

	var provErr *ProvisionError
	require.True(t, errors.As(err, &provErr))
	require.ErrorIs(t, err, ErrConflictSlug)

	// One entry per attempt: first success, second failure.
	logs, err := f.svc.Logs(ctx, "acme-mx", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	statuses := []string{logs[0].Status, logs[1].Status}
	require.Contains(t, statuses, LogStatusSuccess)
	require.Contains(t, statuses, LogStatusFailure)

	// The failed saga must not have re-run tenant-side steps.
	require.Len(t, f.db.roles, 1)
	require.Len(t, f.migrator.tenantAliases, 1)
	require.Len(t, f.admin.inputs, 1)
}

func TestProvisionMigrationFailure(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	f.migrator.tenantErr = errors.New("connection refused")

	_, err := f.svc.Provision(context.Background(), validInput())
	require.Error(t, err)

	var provErr *ProvisionError
	require.True(t, errors.As(err, &provErr))

	logs, err := f.svc.Logs(context.Background(), "acme-mx", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, LogStatusFailure, logs[0].Status)
	require.Contains(t, logs[0].Message, "connection refused")

	// Admin bootstrap never ran.
	require.Empty(t, f.admin.inputs)
}

func TestProvisionTruncatesLogMessage(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	f.migrator.tenantErr = errors.New(strings.Repeat("x", 600))

	_, err := f.svc.Provision(context.Background(), validInput())
	require.Error(t, err)

	logs, err := f.svc.Logs(context.Background(), "acme-mx", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Len(t, logs[0].Message, 500)
}

func TestProvisionRejectsInvalidSlug(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	input := validInput()
	input.Slug = "!!!"

	_, err := f.svc.Provision(context.Background(), input)
	require.Error(t, err)

	// Nothing to attribute the attempt to, so no log entry either.
	logs, err := f.svc.Logs(context.Background(), "", 10)
	require.NoError(t, err)
	require.Empty(t, logs)
	require.Equal(t, 0, f.migrator.controlCalls)
}

func TestDeactivateBlocksActivation(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	ctx := context.Background()

	created, err := f.svc.Provision(ctx, validInput())
	require.NoError(t, err)

	_, err = f.svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)

	activator := tenant.NewActivator(f.store, &stubRegistrar{}, nil)
	_, _, err = activator.Activate(ctx, created.Slug)
	require.ErrorIs(t, err, tenant.ErrTenantNotActive)

	_, err = f.svc.Reactivate(ctx, created.ID)
	require.NoError(t, err)
	_, _, err = activator.Activate(ctx, created.Slug)
	require.NoError(t, err)
}
