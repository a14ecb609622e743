package authapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"dealergate/internal/provisioning"
	"dealergate/pkg/identity"
)

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *App) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, a.log, provisioning.ErrInvalidInput)
		return
	}
	sess, err := a.accounts.SignIn(r.Context(), identity.EmailFor(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			a.metrics.SignIn("invalid")
		} else {
			a.metrics.SignIn("error")
		}
		writeError(w, r, a.log, err)
		return
	}
	a.metrics.SignIn("ok")
	a.setSessionCookie(w, sess)
	writeJSON(w, sess, http.StatusOK)
}

func (a *App) signUpDealership(w http.ResponseWriter, r *http.Request) {
	var req provisioning.AdminSignUp
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.provision.CreateTenantAndAdmin(r.Context(), req)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if res.Session != nil {
		a.setSessionCookie(w, *res.Session)
	}
	writeJSON(w, res, http.StatusCreated)
}

func (a *App) signUpStaff(w http.ResponseWriter, r *http.Request) {
	var req provisioning.StaffSignUp
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.provision.JoinTenant(r.Context(), req)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, res, http.StatusCreated)
}

// signOut drops the cookie. Tokens are stateless and stay valid until expiry.
func (a *App) signOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) setSessionCookie(w http.ResponseWriter, s identity.Session) {
	c := &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    s.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if !s.ExpiresAt.IsZero() {
		c.Expires = s.ExpiresAt
		c.MaxAge = int(s.ExpiresAt.Sub(a.now()).Seconds())
	}
	http.SetCookie(w, c)
}
