package persistence

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// mustTestPool opens a pool against TEST_DATABASE_URL and skips the test when
// the variable is unset. Integration tests own their schema setup.
func mustTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok || strings.TrimSpace(url) == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("create test pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}
