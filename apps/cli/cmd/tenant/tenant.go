package tenantcmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/materialidadmx/materialidad-saas/domains/tenants/be/provisioning"
	"github.com/materialidadmx/materialidad-saas/domains/tenants/be/repo"
	"github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
	usersrepo "github.com/materialidadmx/materialidad-saas/domains/users/be/repo"
	usersservice "github.com/materialidadmx/materialidad-saas/domains/users/be/service"
	"github.com/materialidadmx/materialidad-saas/platform/go/persistence"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
)

// Command groups tenant utilities.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (provision, migrate, list)",
	}

	cmd.AddCommand(provisionCommand())
	cmd.AddCommand(migrateCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

// env groups the wired dependencies every subcommand needs.
type env struct {
	registry  *persistence.Registry
	repo      *repo.PostgresRepository
	activator *tenant.Activator
	migrator  *persistence.Migrator
	service   *service.Service
}

func bootstrap(ctx context.Context, databaseURL string) (*env, error) {
	_ = godotenv.Load()
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("database url required (--database-url or DATABASE_URL)")
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	registry := persistence.NewRegistry(pool)
	dbRouter := persistence.NewRouter(nil)
	routedDB := persistence.NewRoutedDB(registry, dbRouter)
	migrator := persistence.NewMigrator(registry, dbRouter, nil)

	tenantRepo := repo.NewPostgresRepository(routedDB)
	activator := tenant.NewActivator(tenantRepo, registry, nil)

	userService := usersservice.New(usersrepo.NewPostgresRepository(routedDB), zap.NewNop())

	svc := service.New(tenantRepo, tenantRepo, service.ProvisioningDeps{
		Activator: activator,
		DB:        provisioning.NewDBProvisioner(pool),
		Migrator:  migrator,
		Admin:     userService,
	}, zap.NewNop())

	return &env{
		registry:  registry,
		repo:      tenantRepo,
		activator: activator,
		migrator:  migrator,
		service:   svc,
	}, nil
}

func provisionCommand() *cobra.Command {
	var (
		databaseURL   string
		input         service.ProvisionInput
		adminPassword string
	)

	c := &cobra.Command{
		Use:   "provision",
		Short: "Provision a new tenant (record, role, database, schema, admin user)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			e, err := bootstrap(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer e.registry.Close()

			input.AdminPassword = adminPassword
			t, err := e.service.Provision(ctx, input)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s provisioned (id %s, alias %s)\n", t.Slug, t.ID, t.Alias())
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "control-plane Postgres DSN (defaults to DATABASE_URL)")
	c.Flags().StringVar(&input.Name, "name", "", "tenant display name")
	c.Flags().StringVar(&input.Slug, "slug", "", "tenant slug")
	c.Flags().StringVar(&input.DBName, "db-name", "", "tenant database name")
	c.Flags().StringVar(&input.DBUser, "db-user", "", "tenant database role")
	c.Flags().StringVar(&input.DBPassword, "db-password", "", "tenant database password")
	c.Flags().StringVar(&input.DBHost, "db-host", "localhost", "tenant database host")
	c.Flags().IntVar(&input.DBPort, "db-port", 5432, "tenant database port")
	c.Flags().StringVar(&input.DefaultCurrency, "currency", "MXN", "default currency (ISO 4217)")
	c.Flags().StringVar(&input.AdminEmail, "admin-email", "", "tenant admin email")
	c.Flags().StringVar(&adminPassword, "admin-password", "", "tenant admin password")
	c.Flags().StringVar(&input.AdminName, "admin-name", "", "tenant admin full name")
	c.Flags().BoolVar(&input.CreateDatabase, "create-database", true, "create the role and database on the cluster")

	for _, flag := range []string{"name", "slug", "db-name", "db-user", "db-password", "admin-email", "admin-password"} {
		_ = c.MarkFlagRequired(flag)
	}
	return c
}

func migrateCommand() *cobra.Command {
	var (
		databaseURL string
		slug        string
	)

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply tenant schema migrations to one tenant database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			e, err := bootstrap(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer e.registry.Close()

			actCtx, t, err := e.activator.Activate(ctx, slug)
			if err != nil {
				return fmt.Errorf("activate tenant %s: %w", slug, err)
			}
			defer e.activator.Clear(actCtx)

			if err := e.migrator.MigrateTenant(actCtx, t.Alias()); err != nil {
				return fmt.Errorf("migrate tenant %s: %w", slug, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s schema up to date\n", slug)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "control-plane Postgres DSN (defaults to DATABASE_URL)")
	c.Flags().StringVar(&slug, "slug", "", "tenant slug")
	_ = c.MarkFlagRequired("slug")
	return c
}

func listCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			e, err := bootstrap(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer e.registry.Close()

			result, err := e.service.List(ctx, service.ListOptions{PageSize: 100})
			if err != nil {
				return err
			}

			for _, t := range result.Tenants {
				status := "active"
				if !t.IsActive {
					status = "inactive"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", t.Slug, t.Name, t.DBName, status)
			}
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "control-plane Postgres DSN (defaults to DATABASE_URL)")
	return c
}
