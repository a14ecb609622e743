// Package authapi serves sign-in, registration, the resolved session and
// route decisions over HTTP, and optionally the guarded web app itself.
package authapi

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"dealergate/internal/guard"
	"dealergate/internal/metrics"
	"dealergate/internal/provisioning"
	"dealergate/internal/session"
	"dealergate/pkg/identity"
)

// Accounts verifies bearer tokens and signs callers in.
type Accounts interface {
	identity.Verifier
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
}

// Config holds auth-service specific configuration.
type Config struct {
	CookieName   string
	SecureCookie bool
	Routes       guard.Routes
	PendingStaff guard.PendingStaff
	StaticDir    string
	CORSOrigins  []string
	// DebugWrites logs handlers that write a status twice.
	DebugWrites bool
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Accounts  Accounts
	Provision *provisioning.Service
	Loader    *session.Loader
	Rules     *guard.ScreenRules
	Metrics   *metrics.Metrics
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// App is the auth-service application container. Handlers have methods on
// this type; request-scoped state travels in the context.
type App struct {
	log       *zap.SugaredLogger
	accounts  Accounts
	provision *provisioning.Service
	loader    *session.Loader
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	guard guard.HTTP
	areas guard.Areas
	cfg   Config
	now   func() time.Time
}

func New(log *zap.SugaredLogger, deps Deps, cfg Config) *App {
	if cfg.CookieName == "" {
		cfg.CookieName = "dealergate_session"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:5173"}
	}
	return &App{
		log:       log,
		accounts:  deps.Accounts,
		provision: deps.Provision,
		loader:    deps.Loader,
		metrics:   deps.Metrics,
		gatherer:  deps.Gatherer,
		guard: guard.HTTP{
			Loader:  deps.Loader,
			Rules:   deps.Rules,
			Routes:  cfg.Routes,
			Log:     log,
			Metrics: deps.Metrics,
		},
		areas: guard.NewAreas(cfg.Routes, cfg.PendingStaff),
		cfg:   cfg,
		now:   time.Now,
	}
}
