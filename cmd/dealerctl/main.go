// Command dealerctl drives the session and guard packages from a terminal:
// a scripted walkthrough against an in-memory store, one-off decisions and
// operator bootstrap against the configured database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

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

const usage = `usage: dealerctl <command> [flags]

commands:
  demo       walk through sign-up, sign-in and guard decisions in memory
  decide     sign in and print the decision for a path
  operator   create a platform operator account
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg := config.Load()
	log := logger.New(cfg.Env, "dealerctl")
	defer func() { _ = log.Sync() }()

	var err error
	switch os.Args[1] {
	case "demo":
		err = runDemo(cfg, log, os.Args[2:])
	case "decide":
		err = runDecide(cfg, log, os.Args[2:])
	case "operator":
		err = runOperator(cfg, log, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "dealerctl:", err)
		os.Exit(1)
	}
}

// stack is one in-process client: identity, resolver and guard.
type stack struct {
	store    tenants.Store
	auth     *identity.Authority
	client   *identity.Client
	resolver *session.Resolver
	svc      *session.Service
	prov     *provisioning.Service
	routes   guard.Routes
	areas    guard.Areas
	rules    *guard.ScreenRules
}

func newStack(ctx context.Context, cfg config.Config, log *zap.SugaredLogger, store tenants.Store, accounts identity.Accounts) (*stack, error) {
	acfg := identity.ConfigFrom(cfg)
	if cfg.Env == "dev" {
		acfg.BcryptCost = bcrypt.MinCost
	}
	auth, err := identity.NewAuthority(accounts, acfg, log)
	if err != nil {
		return nil, err
	}
	routes, err := guard.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		return nil, err
	}
	rules, err := guard.LoadScreenRules(ctx, cfg.ScreenPolicyFile, routes, log)
	if err != nil {
		return nil, err
	}
	m := metrics.New(nil)
	client := identity.NewClient(auth, log)
	resolver := session.NewResolver(client, session.NewLoader(store, cfg.ProfileFetchTimeout, log, m), log)
	prov := provisioning.New(store, client, log, m)
	return &stack{
		store:    store,
		auth:     auth,
		client:   client,
		resolver: resolver,
		svc:      session.NewService(client, resolver, prov),
		prov:     prov,
		routes:   routes,
		areas:    guard.NewAreas(routes, guard.ParsePendingStaff(cfg.PendingStaffPolicy)),
		rules:    rules,
	}, nil
}

// configured opens the database-backed stores, or in-memory ones when no
// DATABASE_URL is set.
func configured(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (tenants.Store, identity.Accounts, error) {
	pool := db.MustConnect(cfg, log)
	if pool == nil {
		return tenants.NewMemoryStoreFromEnv(log), identity.NewMemoryAccounts(), nil
	}
	if err := tenants.EnsureSchema(ctx, pool); err != nil {
		return nil, nil, err
	}
	if err := identity.EnsureSchema(ctx, pool); err != nil {
		return nil, nil, err
	}
	store := tenants.NewCachedStore(tenants.NewPostgresStore(pool, log), db.MustRedis(cfg, log), cfg.ProfileCacheTTL, log)
	return store, identity.NewPostgresAccounts(pool), nil
}

func runDecide(cfg config.Config, log *zap.SugaredLogger, args []string) error {
	fs := flag.NewFlagSet("decide", flag.ExitOnError)
	user := fs.String("user", "", "username; empty decides for an anonymous caller")
	password := fs.String("password", "", "password")
	path := fs.String("path", "/dashboard", "screen path")
	area := fs.String("area", "", "tenant, platform or global; empty picks by path")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, accounts, err := configured(ctx, cfg, log)
	if err != nil {
		return err
	}
	st, err := newStack(ctx, cfg, log, store, accounts)
	if err != nil {
		return err
	}
	defer st.resolver.Close()
	st.resolver.Start(ctx)
	if *user != "" {
		if _, err := st.svc.SignIn(ctx, *user, *password); err != nil {
			return err
		}
		st.resolver.Wait()
	}

	var p guard.Policy
	switch *area {
	case "":
		p = st.areas.For(*path)
	case "tenant":
		p = st.areas.Tenant
	case "platform":
		p = st.areas.Platform
	case "global":
		p = st.areas.Global
	default:
		return fmt.Errorf("unknown area %q", *area)
	}
	s := st.resolver.Snapshot()
	d := st.rules.Apply(ctx, s, *path, p.Decide(s, *path))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"policy": p.Name(), "session": s, "decision": d})
}

func runOperator(cfg config.Config, log *zap.SugaredLogger, args []string) error {
	fs := flag.NewFlagSet("operator", flag.ExitOnError)
	user := fs.String("user", "", "username")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, accounts, err := configured(ctx, cfg, log)
	if err != nil {
		return err
	}
	st, err := newStack(ctx, cfg, log, store, accounts)
	if err != nil {
		return err
	}
	res, err := st.prov.CreatePlatformOperator(ctx, *user, *password)
	if err != nil {
		return err
	}
	fmt.Printf("platform operator %s created (%s)\n", res.Profile.Username, res.Identity.ID)
	return nil
}

func runDemo(cfg config.Config, log *zap.SugaredLogger, args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	verbose := fs.Bool("v", false, "show service logs")
	_ = fs.Parse(args)
	if !*verbose {
		log = logger.Nop()
	}

	ctx := context.Background()
	mem := tenants.NewMemoryStore(log)
	cfg.Env = "dev"
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dealerctl-demo"
	}
	st, err := newStack(ctx, cfg, log, mem, identity.NewMemoryAccounts())
	if err != nil {
		return err
	}
	defer st.resolver.Close()

	out := os.Stdout
	router := &consoleRouter{out: out, path: "/vehicles"}
	gate := guard.NewGate(st.areas, st.rules, router, consoleNotifier{out: out}, log, nil)
	stopWatch := gate.Watch(ctx, st.resolver)
	defer stopWatch()

	step := func(title string) { fmt.Fprintf(out, "\n== %s\n", title) }
	visit := func(path string) {
		router.visit(path)
		gate.Apply(ctx, st.resolver.Snapshot())
	}

	if _, err := st.prov.CreatePlatformOperator(ctx, "root", "operator-pass"); err != nil {
		return err
	}

	step("anonymous visitor opens /vehicles")
	st.resolver.Start(ctx)

	step("alice registers Main Street Motors")
	res, err := st.svc.SignUp(ctx, session.SignUpRequest{
		Username: "alice", Password: "correct-horse", Phone: "555-0100", DealershipName: "Main Street Motors",
	})
	if err != nil {
		return err
	}
	st.resolver.Wait()
	fmt.Fprintf(out, "  dealership %s registered, code %s, status %s\n", res.Tenant.Name, res.Tenant.Code, res.Tenant.Status)

	step("alice tries the platform area")
	visit("/platform/dealerships")

	step("alice signs out")
	if err := st.svc.SignOut(ctx); err != nil {
		return err
	}

	step("the platform approves the dealership; bob joins with the code")
	mem.SetTenantStatus(res.Tenant.ID, tenants.TenantActive)
	if _, err := st.svc.SignUp(ctx, session.SignUpRequest{Code: res.Tenant.Code, Username: "bob", Password: "correct-horse"}); err != nil {
		return err
	}
	fmt.Fprintln(out, "  bob registered, awaiting approval")

	step("bob signs in")
	if _, err := st.svc.SignIn(ctx, "bob", "correct-horse"); err != nil {
		return err
	}
	st.resolver.Wait()
	visit("/employees")
	if err := st.svc.SignOut(ctx); err != nil {
		return err
	}

	step("root signs in and opens /dashboard")
	visit("/dashboard")
	if _, err := st.svc.SignIn(ctx, "root", "operator-pass"); err != nil {
		return err
	}
	st.resolver.Wait()

	fmt.Fprintf(out, "\nfinal path: %s\n", router.CurrentPath())
	return nil
}
