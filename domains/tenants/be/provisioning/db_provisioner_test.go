package provisioning

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestQuoteLiteral(t *testing.T) {
	require.Equal(t, "'secret'", quoteLiteral("secret"))
	require.Equal(t, "'o''brien'", quoteLiteral("o'brien"))
	require.Equal(t, "''", quoteLiteral(""))
}

func controlPlaneTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok || strings.TrimSpace(url) == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.MaxConns = 1
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestDBProvisionerEnsure_Idempotent(t *testing.T) {
	ctx := context.Background()
	pool := controlPlaneTestPool(t)

	suffix := strings.ToLower(uuid.New().String()[:8])
	roleName := "tenant_role_" + suffix
	dbName := "tenant_db_" + suffix

	prov := NewDBProvisioner(pool)

	require.NoError(t, prov.EnsureRole(ctx, roleName, "s3cret"))
	// Second call must be a no-op, not an error.
	require.NoError(t, prov.EnsureRole(ctx, roleName, "different"))

	var canLogin bool
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT rolcanlogin FROM pg_roles WHERE rolname = $1", roleName).Scan(&canLogin))
	require.True(t, canLogin)

	require.NoError(t, prov.EnsureDatabase(ctx, dbName, roleName))
	require.NoError(t, prov.EnsureDatabase(ctx, dbName, roleName))

	var owner string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT pg_get_userbyid(datdba) FROM pg_database WHERE datname = $1`, dbName).Scan(&owner))
	require.Equal(t, roleName, owner)

	_, err := pool.Exec(ctx, "DROP DATABASE "+dbName)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "DROP ROLE "+roleName)
	require.NoError(t, err)
}
