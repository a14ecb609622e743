package guard

import (
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"dealergate/internal/metrics"
	"dealergate/internal/session"
	"dealergate/pkg/middleware"
	"dealergate/pkg/problems"
)

// NoticeHeader carries a denial notice as JSON on redirect responses.
const NoticeHeader = "X-Dealergate-Notice"

// HTTP enforces policies in front of server-rendered or static screens.
type HTTP struct {
	Loader  *session.Loader
	Rules   *ScreenRules
	Routes  Routes
	Log     *zap.SugaredLogger
	Metrics *metrics.Metrics
}

// snapshot loads the request's snapshot once and caches it on the context
// so nested guards evaluate the same value.
func (h HTTP) snapshot(r *http.Request) (session.Snapshot, *http.Request) {
	if s, ok := session.FromContext(r.Context()); ok {
		return s, r
	}
	s := h.Loader.Load(r.Context(), middleware.IdentityFrom(r.Context()))
	return s, r.WithContext(session.WithSnapshot(r.Context(), s))
}

// Middleware allows the request through or answers with the redirect,
// retry or refusal the decision calls for.
func (h HTTP) Middleware(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, r := h.snapshot(r)
			path := r.URL.Path
			d := h.Rules.Apply(r.Context(), s, path, p.Decide(s, path))
			h.Metrics.Decision(p.Name(), string(d.State))

			switch d.Kind() {
			case KindAllow:
				next.ServeHTTP(w, r)
			case KindLoading, KindAwaitingProfile:
				w.Header().Set("Retry-After", "1")
				problems.Write(w, http.StatusServiceUnavailable, "session-pending", "Session not ready", "Account details are still being resolved")
			case KindStalled:
				w.Header().Set("Retry-After", "5")
				problems.Write(w, http.StatusServiceUnavailable, "session-stalled", "Session stalled", d.Notice.Body)
			default:
				h.redirect(w, r, d)
			}
		})
	}
}

func (h HTTP) redirect(w http.ResponseWriter, r *http.Request, d Decision) {
	path := r.URL.Path
	q := r.URL.Query()
	// A caller sent here by a denial gets no further redirect.
	if d.Target == path || q.Get("denied") != "" {
		h.Log.Warnw("redirect loop refused", "path", path, "target", d.Target, "state", d.State, "reqid", middleware.RequestIDFrom(r.Context()))
		detail := "No screen is available for this account"
		if d.Notice != nil {
			detail = d.Notice.Body
		}
		problems.Write(w, http.StatusForbidden, "access-denied", "Access denied", detail)
		return
	}
	if d.Notice != nil {
		if b, err := json.Marshal(d.Notice); err == nil {
			w.Header().Set(NoticeHeader, string(b))
		}
	}

	loc := d.Target
	switch {
	case d.Target == h.Routes.Login:
		v := url.Values{}
		from := d.From
		if from == "" {
			from = path
		}
		if from != h.Routes.Login {
			v.Set("next", from)
		}
		if d.Notice != nil {
			v.Set("denied", string(d.State))
		}
		if len(v) > 0 {
			loc += "?" + v.Encode()
		}
	case d.State == StateRedirectHome && path == h.Routes.Login:
		// signed in: return to the screen that sent the caller to login
		if next := q.Get("next"); h.localPath(next) {
			loc = next
		}
	}
	http.Redirect(w, r, loc, http.StatusSeeOther)
}

func (h HTTP) localPath(p string) bool {
	return len(p) > 1 && p[0] == '/' && p[1] != '/' && p != h.Routes.Login
}

// DecisionHandler serves GET ?path=...&area=tenant|platform|global for
// browser routers that enforce client-side. Without area the path picks it.
func (h HTTP) DecisionHandler(areas Areas) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" || path[0] != '/' {
			problems.Write(w, http.StatusBadRequest, "invalid-path", "Invalid path", "path must be an absolute screen path")
			return
		}
		var p Policy
		switch area := r.URL.Query().Get("area"); area {
		case "":
			p = areas.For(path)
		case "global":
			p = areas.Global
		case "platform":
			p = areas.Platform
		case "tenant":
			p = areas.Tenant
		default:
			problems.Write(w, http.StatusBadRequest, "invalid-area", "Invalid area", "area must be tenant, platform or global")
			return
		}
		s, r := h.snapshot(r)
		d := h.Rules.Apply(r.Context(), s, path, p.Decide(s, path))
		h.Metrics.Decision(p.Name(), string(d.State))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(d)
	}
}
