package guard

import (
	"dealergate/internal/session"
	"dealergate/pkg/tenants"
)

// Policy maps a snapshot and a requested path to a decision. Implementations
// are pure: no I/O, no clocks, no side effects.
type Policy interface {
	Name() string
	Decide(s session.Snapshot, path string) Decision
}

// PendingStaff selects how the tenant area treats staff awaiting approval.
type PendingStaff string

const (
	PendingAllow PendingStaff = "allow"
	PendingDeny  PendingStaff = "deny"
)

func ParsePendingStaff(s string) PendingStaff {
	if PendingStaff(s) == PendingDeny {
		return PendingDeny
	}
	return PendingAllow
}

func toLogin(routes Routes, path string) Decision {
	d := Decision{State: StateUnauthenticated, Target: routes.Login}
	if path != routes.Login {
		d.From = path
	}
	return d
}

// GlobalPolicy separates public paths from everything that needs a caller.
type GlobalPolicy struct {
	Routes Routes
}

func (GlobalPolicy) Name() string { return "global" }

func (p GlobalPolicy) Decide(s session.Snapshot, path string) Decision {
	switch {
	case s.Loading:
		return loading()
	case s.Identity == nil && !p.Routes.IsPublic(path):
		return toLogin(p.Routes, path)
	case s.Identity != nil && path == p.Routes.Login:
		return Decision{State: StateRedirectHome, Target: p.Routes.Home}
	default:
		return allow()
	}
}

// PlatformPolicy admits platform operators only.
type PlatformPolicy struct {
	Routes Routes
}

func (PlatformPolicy) Name() string { return "platform" }

func (p PlatformPolicy) Decide(s session.Snapshot, path string) Decision {
	if s.Loading {
		return loading()
	}
	if s.Identity == nil {
		return toLogin(p.Routes, path)
	}
	if s.Profile == nil {
		if s.Stalled {
			return stalled()
		}
		return awaiting()
	}
	switch s.Profile.Role {
	case tenants.RolePlatformOperator:
		return allow()
	case tenants.RoleTenantAdmin, tenants.RoleTenantStaff:
		return Decision{State: StateRedirectHome, Target: p.Routes.Home, Notice: &Notice{
			Level: LevelError,
			Title: "Access denied",
			Body:  "This area is reserved for platform operators.",
		}}
	default:
		return unknownRole(p.Routes)
	}
}

// TenantPolicy admits callers linked to a dealership. Platform operators are
// sent to their own area even though they are authenticated.
type TenantPolicy struct {
	Routes  Routes
	Pending PendingStaff
}

func (TenantPolicy) Name() string { return "tenant" }

func (p TenantPolicy) Decide(s session.Snapshot, path string) Decision {
	if s.Loading {
		return loading()
	}
	if s.Identity == nil {
		return toLogin(p.Routes, path)
	}
	if s.Profile == nil {
		if s.Stalled {
			return stalled()
		}
		return awaiting()
	}
	switch s.Profile.Role {
	case tenants.RolePlatformOperator:
		return Decision{State: StateRedirectPlatform, Target: p.Routes.PlatformHome, Notice: &Notice{
			Level: LevelInfo,
			Title: "Platform operator",
			Body:  "Platform operators use the platform area.",
		}}
	case tenants.RoleTenantAdmin, tenants.RoleTenantStaff:
		if !s.Profile.Linked() {
			return Decision{State: StateRedirectLogin, Target: p.Routes.Login, Notice: &Notice{
				Level: LevelError,
				Title: "Account misconfigured",
				Body:  "Your account is not linked to a dealership.",
			}}
		}
		if s.Profile.Status == tenants.ProfilePending {
			if p.Pending == PendingDeny {
				return Decision{State: StateRedirectLogin, Target: p.Routes.Login, Notice: &Notice{
					Level: LevelError,
					Title: "Awaiting approval",
					Body:  "Your dealership administrator has not approved your account yet.",
				}}
			}
			return Decision{State: StateAllowPending}
		}
		return allow()
	default:
		return unknownRole(p.Routes)
	}
}

func unknownRole(routes Routes) Decision {
	return Decision{State: StateRedirectLogin, Target: routes.Login, Notice: &Notice{
		Level: LevelError,
		Title: "Access denied",
		Body:  "Your account has no recognised role.",
	}}
}

type nested struct {
	outer, inner Policy
}

// Nest evaluates inner only when outer allows. Both see the same snapshot.
func Nest(outer, inner Policy) Policy { return nested{outer: outer, inner: inner} }

func (n nested) Name() string { return n.outer.Name() + "/" + n.inner.Name() }

func (n nested) Decide(s session.Snapshot, path string) Decision {
	if d := n.outer.Decide(s, path); !d.Allowed() {
		return d
	}
	return n.inner.Decide(s, path)
}

// Areas routes each path to the policy guarding its part of the app:
// public paths pass the global policy only, the platform prefix adds the
// platform policy, everything else the tenant policy.
type Areas struct {
	Routes   Routes
	Global   Policy
	Platform Policy
	Tenant   Policy
}

// NewAreas wires the standard nesting for routes.
func NewAreas(routes Routes, pending PendingStaff) Areas {
	g := GlobalPolicy{Routes: routes}
	return Areas{
		Routes:   routes,
		Global:   g,
		Platform: Nest(g, PlatformPolicy{Routes: routes}),
		Tenant:   Nest(g, TenantPolicy{Routes: routes, Pending: pending}),
	}
}

func (a Areas) Name() string { return "areas" }

func (a Areas) For(path string) Policy {
	switch {
	case a.Routes.IsPublic(path):
		return a.Global
	case a.Routes.InPlatformArea(path):
		return a.Platform
	default:
		return a.Tenant
	}
}

func (a Areas) Decide(s session.Snapshot, path string) Decision {
	return a.For(path).Decide(s, path)
}
