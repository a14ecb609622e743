package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthority(t *testing.T, mutate ...func(*AuthorityConfig)) *Authority {
	t.Helper()
	cfg := AuthorityConfig{
		Secret:     []byte("test-secret"),
		Issuer:     "dealergate-test",
		TTL:        time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := NewAuthority(NewMemoryAccounts(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	return a
}

func TestEmailFor(t *testing.T) {
	assert.Equal(t, "alice@dealers.internal", EmailFor("alice"))
	// no case folding or trimming
	assert.Equal(t, " Bob@dealers.internal", EmailFor(" Bob"))
}

func TestAuthority_SignUpSignIn(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthority(t)

	id, err := a.SignUp(ctx, EmailFor("alice"), "correct-horse", map[string]any{"username": "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, id.ID)

	_, err = a.SignUp(ctx, EmailFor("alice"), "another-pass", nil)
	assert.ErrorIs(t, err, ErrAccountExists)
	assert.ErrorIs(t, err, ErrCredential)

	_, err = a.SignIn(ctx, EmailFor("alice"), "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.SignIn(ctx, EmailFor("nobody"), "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := a.SignIn(ctx, EmailFor("alice"), "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, id.ID, sess.Identity.ID)
	assert.NotEmpty(t, sess.AccessToken)

	got, err := a.Verify(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id.ID, got.ID)
	assert.Equal(t, "alice@dealers.internal", got.Email)
	assert.Equal(t, "alice", got.Metadata["username"])
}

func TestAuthority_DeleteIdentity(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthority(t)

	id, err := a.SignUp(ctx, EmailFor("temp"), "correct-horse", nil)
	require.NoError(t, err)
	require.NoError(t, a.DeleteIdentity(ctx, id.ID))

	_, err = a.SignIn(ctx, EmailFor("temp"), "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// the username is free again
	_, err = a.SignUp(ctx, EmailFor("temp"), "correct-horse", nil)
	assert.NoError(t, err)
}

func TestAuthority_SignUpValidation(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthority(t)

	_, err := a.SignUp(ctx, EmailFor("shorty"), "short", nil)
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = a.SignUp(ctx, "no-at-sign", "long-enough-pass", nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthority_VerifyRejects(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthority(t)
	_, err := a.SignUp(ctx, EmailFor("carol"), "correct-horse", nil)
	require.NoError(t, err)
	sess, err := a.SignIn(ctx, EmailFor("carol"), "correct-horse")
	require.NoError(t, err)

	_, err = a.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = a.Verify(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := newTestAuthority(t, func(c *AuthorityConfig) { c.Secret = []byte("other-secret") })
	_, err = other.Verify(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.Verify(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthority_CustomClaimPaths(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthority(t, func(c *AuthorityConfig) {
		c.IdentityClaim = "app.uid"
		c.EmailClaim = "app.mail"
	})

	tok, err := jwt.NewBuilder().
		Issuer("dealergate-test").
		Expiration(time.Now().Add(time.Minute)).
		Claim("app", map[string]any{"uid": "ext-42", "mail": "ext@example.com"}).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	id, err := a.Verify(ctx, string(signed))
	require.NoError(t, err)
	assert.Equal(t, "ext-42", id.ID)
	assert.Equal(t, "ext@example.com", id.Email)
}

func TestAuthority_VerifyViaJWKS(t *testing.T) {
	ctx := context.Background()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "hosted-1"))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	a := newTestAuthority(t, func(c *AuthorityConfig) { c.JWKSURL = srv.URL })

	tok, err := jwt.NewBuilder().
		Issuer("https://hosted.example").
		Subject("hosted-user").
		Expiration(time.Now().Add(time.Minute)).
		Claim("email", "h@example.com").
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, priv))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		id, err := a.Verify(ctx, string(signed))
		require.NoError(t, err)
		assert.Equal(t, "hosted-user", id.ID)
	}
	assert.Equal(t, 1, hits, "key set is cached")
}

func TestNewAuthority_RequiresKeyMaterial(t *testing.T) {
	_, err := NewAuthority(NewMemoryAccounts(), AuthorityConfig{}, zap.NewNop().Sugar())
	require.Error(t, err)

	_, err = NewAuthority(NewMemoryAccounts(), AuthorityConfig{Secret: []byte("s"), IdentityClaim: "a[?"}, zap.NewNop().Sugar())
	require.Error(t, err)
}
