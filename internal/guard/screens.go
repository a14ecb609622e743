package guard

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"dealergate/internal/session"
	"dealergate/pkg/tenants"
)

// ScreenQuery is the rule every screen policy module must define.
const ScreenQuery = "data.dealergate.screens.allow"

// ScreenRules applies an optional Rego module after an area policy allowed
// a request. A nil *ScreenRules allows everything.
type ScreenRules struct {
	query  rego.PreparedEvalQuery
	routes Routes
	log    *zap.SugaredLogger
}

// LoadScreenRules compiles the module at path. An empty path returns nil.
func LoadScreenRules(ctx context.Context, path string, routes Routes, log *zap.SugaredLogger) (*ScreenRules, error) {
	if path == "" {
		return nil, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screen policy: %w", err)
	}
	return NewScreenRules(ctx, path, string(src), routes, log)
}

func NewScreenRules(ctx context.Context, name, module string, routes Routes, log *zap.SugaredLogger) (*ScreenRules, error) {
	q, err := rego.New(
		rego.Query(ScreenQuery),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile screen policy: %w", err)
	}
	return &ScreenRules{query: q, routes: routes, log: log}, nil
}

// Apply narrows an allow decision. Anything else, and callers without a
// profile, pass through unchanged.
func (r *ScreenRules) Apply(ctx context.Context, s session.Snapshot, path string, d Decision) Decision {
	if r == nil || !d.Allowed() || s.Profile == nil {
		return d
	}
	input := map[string]any{
		"path":   path,
		"role":   string(s.Profile.Role),
		"status": string(s.Profile.Status),
	}
	if s.Tenant != nil {
		input["tenant_id"] = s.Tenant.ID
		input["tenant_status"] = string(s.Tenant.Status)
	}

	rs, err := r.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		r.log.Errorw("screen policy eval", "path", path, "err", err)
		return r.deny(s.Profile.Role, "Access denied", "This screen is unavailable right now.")
	}
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		if ok, _ := rs[0].Expressions[0].Value.(bool); ok {
			return d
		}
	}
	return r.deny(s.Profile.Role, "Access denied", "You do not have permission to open this screen.")
}

func (r *ScreenRules) deny(role tenants.Role, title, body string) Decision {
	n := &Notice{Level: LevelError, Title: title, Body: body}
	switch role {
	case tenants.RolePlatformOperator:
		return Decision{State: StateRedirectPlatform, Target: r.routes.PlatformHome, Notice: n}
	case tenants.RoleTenantAdmin, tenants.RoleTenantStaff:
		return Decision{State: StateRedirectHome, Target: r.routes.Home, Notice: n}
	default:
		return Decision{State: StateRedirectLogin, Target: r.routes.Login, Notice: n}
	}
}
