package guard

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"dealergate/internal/metrics"
	"dealergate/internal/session"
)

type NavigateOptions struct {
	Replace bool
	// From is the path to return to after signing in.
	From string
}

// Navigator is the client-side router.
type Navigator interface {
	Navigate(path string, opts NavigateOptions)
	CurrentPath() string
}

// Notifier shows fire-and-forget messages to the user.
type Notifier interface {
	Info(title, body string)
	Error(title, body string)
}

// Gate performs the navigation and notification a decision calls for, at
// most once per distinct decision and path.
type Gate struct {
	policy  Policy
	rules   *ScreenRules
	nav     Navigator
	notify  Notifier
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu      sync.Mutex
	lastKey string
	snapKey string
	// paths already redirected away from under the current snapshot
	bounced map[string]bool
	// login path the gate sent the caller to with a denial notice, if any
	deniedAt string
}

func NewGate(policy Policy, rules *ScreenRules, nav Navigator, notify Notifier, log *zap.SugaredLogger, m *metrics.Metrics) *Gate {
	return &Gate{policy: policy, rules: rules, nav: nav, notify: notify, log: log, metrics: m, bounced: map[string]bool{}}
}

// Apply evaluates the current path against s and acts on the result.
func (g *Gate) Apply(ctx context.Context, s session.Snapshot) Decision {
	path := g.nav.CurrentPath()
	d := g.policy.Decide(s, path)
	d = g.rules.Apply(ctx, s, path, d)

	sb, _ := json.Marshal(s)
	g.mu.Lock()
	if sk := string(sb); sk != g.snapKey {
		g.snapKey = sk
		g.bounced = map[string]bool{}
		g.deniedAt = ""
	}
	key := path + "\x00" + d.key()
	if key == g.lastKey {
		g.mu.Unlock()
		return d
	}
	g.lastKey = key
	g.metrics.Decision(g.policy.Name(), string(d.State))

	if d.Kind() != KindRedirect {
		g.mu.Unlock()
		return d
	}
	// a denied caller stays at login instead of being sent home again
	if d.Target == path || g.bounced[d.Target] || (d.State == StateRedirectHome && path == g.deniedAt) {
		g.mu.Unlock()
		g.log.Warnw("redirect loop suppressed", "path", path, "target", d.Target, "state", d.State)
		return d
	}
	g.bounced[path] = true
	if d.State == StateRedirectLogin && d.Notice != nil {
		g.deniedAt = d.Target
	}
	g.mu.Unlock()

	g.show(d.Notice)
	g.nav.Navigate(d.Target, NavigateOptions{Replace: true, From: d.From})
	return d
}

func (g *Gate) show(n *Notice) {
	if n == nil || g.notify == nil {
		return
	}
	switch n.Level {
	case LevelInfo:
		g.notify.Info(n.Title, n.Body)
	default:
		g.notify.Error(n.Title, n.Body)
	}
}

// Watch re-applies the gate on every snapshot the resolver publishes.
func (g *Gate) Watch(ctx context.Context, r *session.Resolver) (stop func()) {
	return r.Subscribe(func(session.Snapshot) {
		// latest value; deliveries can arrive out of order
		g.Apply(ctx, r.Snapshot())
	})
}
