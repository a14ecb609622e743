package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"dealergate/internal/provisioning"
	"dealergate/pkg/identity"
	"dealergate/pkg/middleware"
	"dealergate/pkg/problems"
)

const maxBody = 64 << 10

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		problems.Write(w, http.StatusBadRequest, "invalid-body", "Invalid request body", err.Error())
		return false
	}
	return true
}

// writeError maps domain errors onto problem responses. Unknown errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger, err error) {
	var partial *provisioning.PartialProvisioningError
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		problems.Write(w, http.StatusUnauthorized, "invalid-credentials", "Sign-in failed", "Invalid username or password")
	case errors.Is(err, identity.ErrAccountExists):
		problems.Write(w, http.StatusConflict, "account-exists", "Username taken", "An account with this username already exists")
	case errors.Is(err, identity.ErrWeakPassword):
		problems.Write(w, http.StatusUnprocessableEntity, "weak-password", "Password too weak", err.Error())
	case errors.Is(err, provisioning.ErrInvalidInput):
		problems.Write(w, http.StatusBadRequest, "invalid-input", "Invalid input", err.Error())
	case errors.Is(err, provisioning.ErrTenantInactive):
		problems.Write(w, http.StatusUnprocessableEntity, "dealership-inactive", "Dealership not active", "This dealership has not been approved yet")
	case errors.Is(err, provisioning.ErrTenantNotFound):
		problems.Write(w, http.StatusUnprocessableEntity, "dealership-not-found", "Unknown dealership", "No dealership uses this code")
	case errors.As(err, &partial):
		log.Errorw("registration incomplete", "err", err, "tenant_id", partial.TenantID, "identity_id", partial.IdentityID, "compensated", partial.Compensated, "reqid", middleware.RequestIDFrom(r.Context()))
		problems.Write(w, http.StatusInternalServerError, "registration-failed", "Registration failed", "Your dealership could not be registered. Please try again.")
	default:
		log.Errorw("request failed", "path", r.URL.Path, "err", err, "reqid", middleware.RequestIDFrom(r.Context()))
		problems.Write(w, http.StatusInternalServerError, "internal", "Internal error", "The request could not be completed")
	}
}

// spa serves files under dir and falls back to index.html so the browser
// router can handle unknown paths.
// staticApp serves files that exist under dir as they are, so the login
// screen can load its assets. Every other path is a screen: it passes
// through guard and renders index.html.
func staticApp(dir string, guard func(http.Handler) http.Handler) http.Handler {
	files := http.FileServer(http.Dir(dir))
	screen := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if name != "/index.html" {
			if st, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name))); err == nil && !st.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		screen.ServeHTTP(w, r)
	})
}
