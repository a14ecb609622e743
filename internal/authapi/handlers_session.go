package authapi

import (
	"net/http"

	"dealergate/pkg/middleware"
	"dealergate/pkg/problems"
)

// getSession returns the caller's resolved snapshot. Anonymous callers get
// the empty snapshot rather than an error.
func (a *App) getSession(w http.ResponseWriter, r *http.Request) {
	s := a.loader.Load(r.Context(), middleware.IdentityFrom(r.Context()))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, s, http.StatusOK)
}

// refreshSession bypasses the profile cache, e.g. after an approval.
func (a *App) refreshSession(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())
	if id == nil {
		problems.Write(w, http.StatusUnauthorized, "unauthenticated", "Not signed in", "A session token is required")
		return
	}
	a.loader.Invalidate(r.Context(), id.ID)
	s := a.loader.Load(r.Context(), id)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, s, http.StatusOK)
}
