package migratecmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/materialidadmx/materialidad-saas/platform/go/persistence"
)

// Command applies the control-plane schema migrations.
func Command() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply control-plane schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			_ = godotenv.Load()
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return fmt.Errorf("database url required (--database-url or DATABASE_URL)")
			}

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}

			registry := persistence.NewRegistry(pool)
			defer registry.Close()

			migrator := persistence.NewMigrator(registry, persistence.NewRouter(nil), nil)
			if err := migrator.MigrateControlPlane(ctx); err != nil {
				return fmt.Errorf("migrate control plane: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "control-plane schema up to date")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "control-plane Postgres DSN (defaults to DATABASE_URL)")
	return c
}
