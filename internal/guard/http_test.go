package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dealergate/internal/session"
	"dealergate/pkg/identity"
	"dealergate/pkg/middleware"
	"dealergate/pkg/tenants"
)

// fixedStore serves canned profiles, including ones a real store would
// refuse to persist. block makes every read hang.
type fixedStore struct {
	tenants.Store
	mu       sync.Mutex
	profiles map[string]tenants.Profile
	block    chan struct{}
	reads    int
}

func (f *fixedStore) ProfileWithTenant(ctx context.Context, id string) (tenants.Profile, *tenants.Tenant, error) {
	f.mu.Lock()
	f.reads++
	p, ok := f.profiles[id]
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if !ok {
		return tenants.Profile{}, nil, tenants.ErrNotFound
	}
	var tn *tenants.Tenant
	if p.Linked() {
		tn = &tenants.Tenant{ID: *p.TenantID, Name: "Acme", Status: tenants.TenantActive}
	}
	return p, tn, nil
}

func newHTTP(t *testing.T, store tenants.Store, timeout time.Duration) HTTP {
	t.Helper()
	log := zap.NewNop().Sugar()
	return HTTP{
		Loader: session.NewLoader(store, timeout, log, nil),
		Routes: routes,
		Log:    log,
	}
}

func profiles() *fixedStore {
	return &fixedStore{profiles: map[string]tenants.Profile{
		"admin":    {ID: "admin", Username: "admin", Role: tenants.RoleTenantAdmin, TenantID: ptr("T1"), Status: tenants.ProfileActive},
		"operator": {ID: "operator", Username: "operator", Role: tenants.RolePlatformOperator, Status: tenants.ProfileActive},
		"orphan":   {ID: "orphan", Username: "orphan", Role: tenants.RoleTenantStaff, Status: tenants.ProfileActive},
	}}
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, target, who string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if who != "" {
		req = req.WithContext(middleware.WithIdentity(req.Context(), &identity.Identity{ID: who}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_Redirects(t *testing.T) {
	h := newHTTP(t, profiles(), time.Second)
	guarded := h.Middleware(NewAreas(routes, PendingAllow))(okHandler)

	rec := serve(guarded, "/vehicles", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fvehicles", rec.Header().Get("Location"))
	assert.Empty(t, rec.Header().Get(NoticeHeader))

	rec = serve(guarded, "/vehicles", "operator")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/platform/dealerships", rec.Header().Get("Location"))
	var n Notice
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get(NoticeHeader)), &n))
	assert.Equal(t, LevelInfo, n.Level)

	rec = serve(guarded, "/vehicles", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(guarded, "/showroom/cars/9", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_DenialDoesNotBounce(t *testing.T) {
	h := newHTTP(t, profiles(), time.Second)
	guarded := h.Middleware(NewAreas(routes, PendingAllow))(okHandler)

	rec := serve(guarded, "/vehicles", "orphan")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Equal(t, "/login?denied=RedirectLogin&next=%2Fvehicles", loc)
	assert.NotEmpty(t, rec.Header().Get(NoticeHeader))

	// following the redirect must not send the caller home again
	rec = serve(guarded, loc, "orphan")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMiddleware_SignedInAtLoginReturnsToOrigin(t *testing.T) {
	h := newHTTP(t, profiles(), time.Second)
	guarded := h.Middleware(NewAreas(routes, PendingAllow))(okHandler)

	rec := serve(guarded, "/login?next=%2Fvehicles", "admin")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/vehicles", rec.Header().Get("Location"))

	rec = serve(guarded, "/login?next=%2F%2Fevil.example", "admin")
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	rec = serve(guarded, "/login", "admin")
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestMiddleware_PendingStates(t *testing.T) {
	h := newHTTP(t, profiles(), time.Second)
	guarded := h.Middleware(NewAreas(routes, PendingAllow))(okHandler)

	// identity without a profile yet
	rec := serve(guarded, "/vehicles", "newcomer")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	store := profiles()
	store.block = make(chan struct{})
	t.Cleanup(func() { close(store.block) })
	h = newHTTP(t, store, 20*time.Millisecond)
	rec = serve(h.Middleware(NewAreas(routes, PendingAllow))(okHandler), "/vehicles", "admin")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestMiddleware_NestedGuardsShareSnapshot(t *testing.T) {
	store := profiles()
	h := newHTTP(t, store, time.Second)
	areas := NewAreas(routes, PendingAllow)
	guarded := h.Middleware(areas.Global)(h.Middleware(areas.Tenant)(okHandler))

	rec := serve(guarded, "/vehicles", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.reads)
}

func TestMiddleware_ScreenRules(t *testing.T) {
	h := newHTTP(t, &fixedStore{profiles: map[string]tenants.Profile{
		"staff": {ID: "staff", Username: "staff", Role: tenants.RoleTenantStaff, TenantID: ptr("T1"), Status: tenants.ProfileActive},
	}}, time.Second)
	h.Rules = loadScreens(t)
	guarded := h.Middleware(NewAreas(routes, PendingAllow))(okHandler)

	assert.Equal(t, http.StatusOK, serve(guarded, "/vehicles", "staff").Code)
	rec := serve(guarded, "/employees", "staff")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestDecisionHandler(t *testing.T) {
	h := newHTTP(t, profiles(), time.Second)
	handler := h.DecisionHandler(NewAreas(routes, PendingAllow))

	decode := func(rec *httptest.ResponseRecorder) map[string]any {
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return out
	}

	rec := serve(handler, "/v1/guard/decision?path=/vehicles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(rec)
	assert.Equal(t, "Unauthenticated", body["state"])
	assert.Equal(t, "redirect", body["kind"])
	assert.Equal(t, "/vehicles", body["from"])

	rec = serve(handler, "/v1/guard/decision?path=/platform/dealerships&area=platform", "admin")
	body = decode(rec)
	assert.Equal(t, "RedirectHome", body["state"])
	assert.NotNil(t, body["notice"])

	rec = serve(handler, "/v1/guard/decision?path=/vehicles&area=tenant", "admin")
	assert.Equal(t, "allow", decode(rec)["kind"])

	assert.Equal(t, http.StatusBadRequest, serve(handler, "/v1/guard/decision", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(handler, "/v1/guard/decision?path=vehicles", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(handler, "/v1/guard/decision?path=/x&area=admin", "").Code)
}
