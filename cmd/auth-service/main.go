package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dealergate/internal/authapi"
	"dealergate/internal/guard"
	"dealergate/internal/metrics"
	"dealergate/internal/provisioning"
	"dealergate/internal/session"
	"dealergate/pkg/config"
	"dealergate/pkg/db"
	"dealergate/pkg/identity"
	"dealergate/pkg/logger"
	"dealergate/pkg/tenants"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "auth-service")
	defer func() { _ = log.Sync() }()

	if cfg.SessionSecret == "" && cfg.JWKSURL == "" {
		log.Fatalw("SESSION_SECRET or JWKS_URL is required outside dev")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool := db.MustConnect(cfg, log)
	var (
		store    tenants.Store
		accounts identity.Accounts
	)
	if pool != nil {
		if err := tenants.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("ensure tenant schema", "err", err)
		}
		if err := identity.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("ensure identity schema", "err", err)
		}
		if err := tenants.SeedFromEnv(ctx, pool, os.Getenv("TENANT_SEED_JSON")); err != nil {
			log.Warnw("tenant seed failed", "err", err)
		}
		store = tenants.NewPostgresStore(pool, log)
		accounts = identity.NewPostgresAccounts(pool)
	} else {
		store = tenants.NewMemoryStoreFromEnv(log)
		accounts = identity.NewMemoryAccounts()
	}
	store = tenants.NewCachedStore(store, db.MustRedis(cfg, log), cfg.ProfileCacheTTL, log)

	m := metrics.New(nil)
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		gatherer = reg
	}

	auth, err := identity.NewAuthority(accounts, identity.ConfigFrom(cfg), log)
	if err != nil {
		log.Fatalw("identity authority", "err", err)
	}
	prov := provisioning.New(store, auth, log, m)
	bootstrapOperator(ctx, prov, log)

	routes, err := guard.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		log.Fatalw("routes", "err", err)
	}
	rules, err := guard.LoadScreenRules(ctx, cfg.ScreenPolicyFile, routes, log)
	if err != nil {
		log.Fatalw("screen policy", "err", err)
	}
	cancel()

	app := authapi.New(log, authapi.Deps{
		Accounts:  auth,
		Provision: prov,
		Loader:    session.NewLoader(store, cfg.ProfileFetchTimeout, log, m),
		Rules:     rules,
		Metrics:   m,
		Gatherer:  gatherer,
	}, authapi.Config{
		CookieName:   cfg.CookieName,
		SecureCookie: cfg.Prod(),
		Routes:       routes,
		PendingStaff: guard.ParsePendingStaff(cfg.PendingStaffPolicy),
		StaticDir:    cfg.StaticDir,
		CORSOrigins:  authapi.ParseOrigins(os.Getenv("CORS_ORIGINS")),
		DebugWrites:  cfg.DebugDoubleWrite,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("auth-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = srv.Shutdown(sctx)
	if pool != nil {
		pool.Close()
	}
	log.Infow("auth-service stopped")
}

// bootstrapOperator creates the account named by BOOTSTRAP_OPERATOR
// (username:password) unless it exists already.
func bootstrapOperator(ctx context.Context, prov *provisioning.Service, log logger.Sugared) {
	v := os.Getenv("BOOTSTRAP_OPERATOR")
	if v == "" {
		return
	}
	username, password, ok := strings.Cut(v, ":")
	if !ok {
		log.Warnw("BOOTSTRAP_OPERATOR must be username:password")
		return
	}
	if _, err := prov.CreatePlatformOperator(ctx, username, password); err != nil && !errors.Is(err, identity.ErrAccountExists) {
		log.Warnw("bootstrap operator", "username", username, "err", err)
	}
}
