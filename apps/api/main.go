package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	authhandler "github.com/materialidadmx/materialidad-saas/domains/auth/be/handler"
	orgshandler "github.com/materialidadmx/materialidad-saas/domains/organizations/be/handler"
	orgsrepo "github.com/materialidadmx/materialidad-saas/domains/organizations/be/repo"
	orgsservice "github.com/materialidadmx/materialidad-saas/domains/organizations/be/service"
	tenantshandler "github.com/materialidadmx/materialidad-saas/domains/tenants/be/handler"
	tenantsprov "github.com/materialidadmx/materialidad-saas/domains/tenants/be/provisioning"
	tenantsrepo "github.com/materialidadmx/materialidad-saas/domains/tenants/be/repo"
	tenantsservice "github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
	usersrepo "github.com/materialidadmx/materialidad-saas/domains/users/be/repo"
	usersservice "github.com/materialidadmx/materialidad-saas/domains/users/be/service"
	platformauth "github.com/materialidadmx/materialidad-saas/platform/go/auth"
	"github.com/materialidadmx/materialidad-saas/platform/go/httpjson"
	platformlogging "github.com/materialidadmx/materialidad-saas/platform/go/logging"
	platformmiddleware "github.com/materialidadmx/materialidad-saas/platform/go/middleware"
	"github.com/materialidadmx/materialidad-saas/platform/go/persistence"
	"github.com/materialidadmx/materialidad-saas/platform/go/tenant"
	tenantmiddleware "github.com/materialidadmx/materialidad-saas/platform/go/tenant/middleware"
	"github.com/materialidadmx/materialidad-saas/platform/go/workflow"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	JWTSecret       string        `env:"JWT_SECRET,required"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"materialidad"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	StrictRouting   bool          `env:"STRICT_TENANT_ROUTING" envDefault:"false"`
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"1m"`
	WorkflowURL     string        `env:"WORKFLOW_WEBHOOK_URL"`
}

// workflowSink bridges the provisioning saga to the workflow trigger.
type workflowSink struct {
	trigger *workflow.Trigger
}

func (s *workflowSink) TenantProvisioned(ctx context.Context, t tenant.Tenant) {
	s.trigger.Fire(ctx, workflow.Payload{
		Company: t.Name,
		Context: map[string]any{
			"event":     "tenant_provisioned",
			"tenant_id": t.ID.String(),
			"slug":      t.Slug,
		},
	})
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	controlPlane, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init control-plane pool", zap.Error(err))
	}

	registry := persistence.NewRegistry(controlPlane)
	defer registry.Close()

	routerOpts := []persistence.RouterOption{}
	if cfg.StrictRouting {
		routerOpts = append(routerOpts, persistence.Strict())
	}
	dbRouter := persistence.NewRouter(logger, routerOpts...)
	routedDB := persistence.NewRoutedDB(registry, dbRouter)
	migrator := persistence.NewMigrator(registry, dbRouter, logger)

	if cfg.MigrateOnStart {
		if err := migrator.MigrateControlPlane(ctx); err != nil {
			logger.Fatal("migrate control plane", zap.Error(err))
		}
	}

	tenantRepo := tenantsrepo.NewPostgresRepository(routedDB)
	activator := tenant.NewActivator(tenantRepo, registry, logger)

	userRepo := usersrepo.NewPostgresRepository(routedDB)
	userService := usersservice.New(userRepo, logger)

	var events tenantsservice.EventSink
	if cfg.WorkflowURL != "" {
		events = &workflowSink{trigger: workflow.NewTrigger(cfg.WorkflowURL, logger)}
	}

	tenantService := tenantsservice.New(tenantRepo, tenantRepo, tenantsservice.ProvisioningDeps{
		Activator: activator,
		DB:        tenantsprov.NewDBProvisioner(controlPlane),
		Migrator:  migrator,
		Admin:     userService,
		Events:    events,
	}, logger)
	tenantHandler := tenantshandler.New(tenantService, logger)

	orgRepo := orgsrepo.NewPostgresRepository(routedDB)
	orgService := orgsservice.New(orgRepo, tenantService, logger)
	orgHandler := orgshandler.New(orgService, logger)

	secret := []byte(cfg.JWTSecret)
	issuer := platformauth.NewIssuer(secret, cfg.JWTIssuer, cfg.TokenTTL)
	verifier := platformauth.NewVerifier(secret, cfg.JWTIssuer)
	authHandler := authhandler.New(userService, tenantService, issuer, cfg.TokenTTL, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := controlPlane.Ping(r.Context()); err != nil {
			httpjson.WriteDetail(w, http.StatusServiceUnavailable, "control plane unreachable")
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(platformauth.JWT(verifier))
	apiRouter.Use(platformmiddleware.RequestTrace)

	apiRouter.Mount("/auth", authHandler.Routes())

	// Platform administration: tenant registry, provisioning, organizations.
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.RequireAdmin)
		r.Mount("/admin/tenants", tenantHandler.Routes())
		r.Mount("/admin/organizations", orgHandler.Routes())
	})

	// Tenant-scoped surface: every request runs under an active binding that
	// is cleared when the request ends.
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.RequireAuthenticated)
		r.Use(tenantmiddleware.WithTenant(activator, tenantmiddleware.Config{
			Require:  true,
			CacheTTL: cfg.TenantCacheTTL,
		}))
		r.Get("/tenant/profile", func(w http.ResponseWriter, req *http.Request) {
			t, ok := tenant.Current(req.Context())
			if !ok {
				httpjson.WriteDetail(w, http.StatusBadRequest, "tenant is required")
				return
			}
			httpjson.Write(w, http.StatusOK, map[string]any{
				"id":              t.ID,
				"name":            t.Name,
				"slug":            t.Slug,
				"defaultCurrency": t.DefaultCurrency,
				"isActive":        t.IsActive,
			})
		})
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
