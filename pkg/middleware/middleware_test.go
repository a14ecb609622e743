package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"dealergate/pkg/identity"
)

type stubVerifier map[string]identity.Identity

func (s stubVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return identity.Identity{}, identity.ErrInvalidToken
}

func TestAuthenticate(t *testing.T) {
	v := stubVerifier{"good": {ID: "u1"}}
	var seen *identity.Identity
	h := Authenticate(v, "sess", zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFrom(r.Context())
	}))

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		wantID string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, "u1"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sess", Value: "good"}) }, "u1"},
		{"invalid token stays anonymous", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, ""},
		{"no token", func(r *http.Request) {}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
			tc.setup(req)
			h.ServeHTTP(httptest.NewRecorder(), req)
			if tc.wantID == "" {
				assert.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, tc.wantID, seen.ID)
		})
	}
}

func TestTokenFrom_PrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer from-header")
	req.AddCookie(&http.Cookie{Name: "sess", Value: "from-cookie"})
	assert.Equal(t, "from-header", TokenFrom(req, "sess"))

	req.Header.Del("Authorization")
	assert.Equal(t, "from-cookie", TokenFrom(req, "sess"))
	assert.Equal(t, "", TokenFrom(req, ""))
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", got)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get("X-Request-Id"))
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Recover(zap.New(core).Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, logs.FilterMessage("panic").Len())
}

func TestDetectDoubleWrite(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core).Sugar()
	twice := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
		_, _ = w.Write([]byte("x"))
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	DetectDoubleWrite(true, log)(twice).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("status written twice").Len())

	DetectDoubleWrite(false, log)(twice).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, logs.FilterMessage("status written twice").Len())
}
