package authapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dealergate/pkg/middleware"
)

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(middleware.DetectDoubleWrite(a.cfg.DebugWrites, a.log))
	r.Use(middleware.Tracing("auth-service", a.log))
	r.Use(middleware.Authenticate(a.accounts, a.cfg.CookieName, a.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(vr chi.Router) {
		vr.Use(cors(a.cfg.CORSOrigins))
		vr.Post("/auth/sign-in", a.signIn)
		vr.Post("/auth/sign-up/dealership", a.signUpDealership)
		vr.Post("/auth/sign-up/staff", a.signUpStaff)
		vr.Post("/auth/sign-out", a.signOut)
		vr.Get("/session", a.getSession)
		vr.Post("/session/refresh", a.refreshSession)
		vr.Get("/guard/decision", a.guard.DecisionHandler(a.areas))
		vr.Get("/openapi.json", apiDoc().ServeHandler("dealergate auth", "v1", a.cfg.CookieName))
	})

	if a.cfg.StaticDir != "" {
		r.Handle("/*", staticApp(a.cfg.StaticDir, a.guard.Middleware(a.areas)))
	}
	return r
}

func cors(allowed []string) func(http.Handler) http.Handler {
	match := func(origin string) (string, bool) {
		if origin == "" {
			return "", false
		}
		for _, a := range allowed {
			a = strings.TrimSpace(a)
			if a == "*" || a == origin {
				return a, true
			}
		}
		return "", false
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if ao, ok := match(origin); ok {
				// a wildcard echoes the caller's origin
				if ao == "*" {
					ao = origin
				}
				w.Header().Set("Access-Control-Allow-Origin", ao)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseOrigins splits a comma separated origin list.
func ParseOrigins(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
