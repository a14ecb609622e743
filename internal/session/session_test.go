package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dealergate/internal/provisioning"
	"dealergate/pkg/identity"
	"dealergate/pkg/tenants"
)

// gatedStore blocks profile reads until the gate for that identity is
// closed, and can fail them.
type gatedStore struct {
	tenants.Store
	mu    sync.Mutex
	gates map[string]chan struct{}
	fail  error
	reads int
}

func (g *gatedStore) gate(id string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = map[string]chan struct{}{}
	}
	ch := make(chan struct{})
	g.gates[id] = ch
	return ch
}

func (g *gatedStore) ProfileWithTenant(ctx context.Context, id string) (tenants.Profile, *tenants.Tenant, error) {
	g.mu.Lock()
	ch := g.gates[id]
	g.reads++
	fail := g.fail
	g.mu.Unlock()
	if ch != nil {
		<-ch
	}
	if fail != nil {
		return tenants.Profile{}, nil, fail
	}
	return g.Store.ProfileWithTenant(ctx, id)
}

type env struct {
	mem      *tenants.MemoryStore
	store    *gatedStore
	auth     *identity.Authority
	client   *identity.Client
	loader   *Loader
	resolver *Resolver
	service  *Service
}

func newEnv(t *testing.T, timeout time.Duration) *env {
	t.Helper()
	log := zap.NewNop().Sugar()
	mem := tenants.NewMemoryStore(log)
	store := &gatedStore{Store: mem}
	auth, err := identity.NewAuthority(identity.NewMemoryAccounts(), identity.AuthorityConfig{
		Secret:     []byte("session-test"),
		BcryptCost: bcrypt.MinCost,
	}, log)
	require.NoError(t, err)
	client := identity.NewClient(auth, log)
	loader := NewLoader(store, timeout, log, nil)
	resolver := NewResolver(client, loader, log)
	t.Cleanup(resolver.Close)
	prov := provisioning.New(store, client, log, nil)
	return &env{
		mem: mem, store: store, auth: auth, client: client,
		loader: loader, resolver: resolver, service: NewService(client, resolver, prov),
	}
}

// tenantAdmin registers a dealership admin without touching the client session.
func (e *env) tenantAdmin(t *testing.T, username string) (identity.Identity, tenants.Tenant) {
	t.Helper()
	ctx := context.Background()
	tn, err := e.mem.InsertTenant(ctx, tenants.Tenant{Name: username + " motors"})
	require.NoError(t, err)
	id, err := e.auth.SignUp(ctx, identity.EmailFor(username), "correct-horse", nil)
	require.NoError(t, err)
	require.NoError(t, e.mem.UpdateProfile(ctx, tenants.Profile{
		ID: id.ID, Username: username, Role: tenants.RoleTenantAdmin, TenantID: &tn.ID, Status: tenants.ProfileActive,
	}))
	return id, tn
}

func TestLoader_Outcomes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	id, tn := e.tenantAdmin(t, "alice")

	assert.Equal(t, Snapshot{}, e.loader.Load(ctx, nil))

	s := e.loader.Load(ctx, &id)
	require.NotNil(t, s.Profile)
	require.NotNil(t, s.Tenant)
	assert.Equal(t, tn.ID, s.Tenant.ID)
	assert.False(t, s.Loading)
	assert.False(t, s.Stalled)

	missing := identity.Identity{ID: "no-profile"}
	s = e.loader.Load(ctx, &missing)
	assert.NotNil(t, s.Identity)
	assert.Nil(t, s.Profile)
	assert.Nil(t, s.Tenant)
	assert.False(t, s.Stalled)

	e.store.fail = errors.New("connection refused")
	s = e.loader.Load(ctx, &id)
	assert.Nil(t, s.Profile)
	assert.False(t, s.Loading)
	assert.False(t, s.Stalled)
}

func TestLoader_TimeoutStalls(t *testing.T) {
	e := newEnv(t, 20*time.Millisecond)
	id, _ := e.tenantAdmin(t, "slow")
	gate := e.store.gate(id.ID)
	defer close(gate)

	s := e.loader.Load(context.Background(), &id)
	assert.True(t, s.Stalled)
	assert.Nil(t, s.Profile)
	assert.False(t, s.Loading)
}

func TestResolver_StartWithoutSession(t *testing.T) {
	e := newEnv(t, time.Second)
	assert.True(t, e.resolver.Snapshot().Loading)

	e.resolver.Start(context.Background())
	assert.Equal(t, Snapshot{}, e.resolver.Snapshot())
}

func TestResolver_StartWithExistingSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	id, _ := e.tenantAdmin(t, "bob")
	sess, err := e.auth.SignIn(ctx, identity.EmailFor("bob"), "correct-horse")
	require.NoError(t, err)
	require.NoError(t, e.client.Restore(ctx, sess.AccessToken, sess.ExpiresAt))

	var seen []Snapshot
	e.resolver.Subscribe(func(s Snapshot) { seen = append(seen, s) })
	e.resolver.Start(ctx)

	s := e.resolver.Snapshot()
	require.NotNil(t, s.Profile)
	assert.Equal(t, id.ID, s.Profile.ID)
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.False(t, seen[1].Loading)
}

func TestResolver_SignInPublishesAwaitingThenProfile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	id, _ := e.tenantAdmin(t, "carol")
	e.resolver.Start(ctx)

	var (
		mu   sync.Mutex
		seen []Snapshot
	)
	e.resolver.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	_, err := e.service.SignIn(ctx, "carol", "correct-horse")
	require.NoError(t, err)
	e.resolver.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.NotNil(t, seen[0].Identity)
	assert.Nil(t, seen[0].Profile, "profile is not assumed the instant identity is known")
	assert.False(t, seen[0].Loading)
	require.NotNil(t, seen[1].Profile)
	assert.Equal(t, id.ID, seen[1].Profile.ID)
}

func TestResolver_SignOutReentersLoading(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	e.tenantAdmin(t, "dan")
	e.resolver.Start(ctx)
	_, err := e.service.SignIn(ctx, "dan", "correct-horse")
	require.NoError(t, err)
	e.resolver.Wait()

	var seen []Snapshot
	e.resolver.Subscribe(func(s Snapshot) { seen = append(seen, s) })
	require.NoError(t, e.service.SignOut(ctx))

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.Equal(t, Snapshot{}, seen[1])
}

func TestResolver_StaleLoadDiscarded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	id, _ := e.tenantAdmin(t, "erin")
	e.resolver.Start(ctx)

	gate := e.store.gate(id.ID)
	_, err := e.service.SignIn(ctx, "erin", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, e.service.SignOut(ctx))

	close(gate)
	e.resolver.Wait()
	assert.Equal(t, Snapshot{}, e.resolver.Snapshot(), "late profile for a signed-out identity is dropped")
}

func TestResolver_RefreshIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	id, tn := e.tenantAdmin(t, "fay")
	e.resolver.Start(ctx)
	_, err := e.service.SignIn(ctx, "fay", "correct-horse")
	require.NoError(t, err)
	e.resolver.Wait()

	first, err := json.Marshal(e.resolver.Refresh(ctx))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		b, err := json.Marshal(e.service.Refresh(ctx))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(b))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.resolver.Refresh(ctx)
		}()
	}
	wg.Wait()
	b, err := json.Marshal(e.resolver.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(b))

	// data change is picked up wholesale
	e.mem.SetTenantStatus(tn.ID, tenants.TenantActive)
	s := e.resolver.Refresh(ctx)
	require.NotNil(t, s.Tenant)
	assert.Equal(t, tenants.TenantActive, s.Tenant.Status)
	assert.Equal(t, id.ID, s.Profile.ID)
}

func TestResolver_RefreshBypassesCache(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop().Sugar()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mem := tenants.NewMemoryStore(log)
	cached := tenants.NewCachedStore(mem, rdb, time.Hour, log)
	tn, err := mem.InsertTenant(ctx, tenants.Tenant{Name: "Cache Cars"})
	require.NoError(t, err)
	id := identity.Identity{ID: "staff-1"}
	require.NoError(t, cached.UpdateProfile(ctx, tenants.Profile{
		ID: id.ID, Username: "gus", Role: tenants.RoleTenantStaff, TenantID: &tn.ID, Status: tenants.ProfilePending,
	}))

	loader := NewLoader(cached, time.Second, log, nil)
	s := loader.Load(ctx, &id)
	require.NotNil(t, s.Tenant)
	assert.Equal(t, tenants.TenantPending, s.Tenant.Status)

	// changed behind the cache's back
	mem.SetTenantStatus(tn.ID, tenants.TenantActive)
	assert.Equal(t, tenants.TenantPending, loader.Load(ctx, &id).Tenant.Status)

	loader.Invalidate(ctx, id.ID)
	assert.Equal(t, tenants.TenantActive, loader.Load(ctx, &id).Tenant.Status)
}

func TestService_SignUpDealershipSignsIn(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Second)
	e.resolver.Start(ctx)

	res, err := e.service.SignUp(ctx, SignUpRequest{Username: "hank", Password: "correct-horse", DealershipName: "Hank's Autos"})
	require.NoError(t, err)
	assert.True(t, res.SignedIn)
	e.resolver.Wait()

	s := e.service.Snapshot()
	require.NotNil(t, s.Profile)
	assert.Equal(t, tenants.RoleTenantAdmin, s.Profile.Role)
	require.NotNil(t, s.Tenant)
	assert.Equal(t, res.Tenant.ID, s.Tenant.ID)

	require.NoError(t, e.service.SignOut(ctx))
	e.mem.SetTenantStatus(res.Tenant.ID, tenants.TenantActive)

	joined, err := e.service.SignUp(ctx, SignUpRequest{Username: "ivy", Password: "correct-horse", Code: res.Tenant.Code})
	require.NoError(t, err)
	assert.False(t, joined.SignedIn)
	assert.Nil(t, e.service.Snapshot().Identity, "joining staff stay signed out")

	_, err = e.service.SignUp(ctx, SignUpRequest{Username: "jay", Password: "correct-horse", Code: "NOPE0000"})
	assert.ErrorIs(t, err, provisioning.ErrTenantNotFound)
}
