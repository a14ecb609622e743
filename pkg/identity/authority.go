package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmespath/go-jmespath"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dealergate/pkg/config"
)

const metadataClaim = "user_metadata"

type AuthorityConfig struct {
	Secret []byte // HS256 key for locally minted sessions
	Issuer string
	TTL    time.Duration

	// Optional hosted provider; its tokens verify against this key set.
	JWKSURL string
	JWKSTTL time.Duration

	// JMESPath expressions into the verified claim set.
	IdentityClaim string
	EmailClaim    string

	MinPassword int
	BcryptCost  int
}

// ConfigFrom maps process configuration onto an AuthorityConfig.
func ConfigFrom(cfg config.Config) AuthorityConfig {
	return AuthorityConfig{
		Secret:        []byte(cfg.SessionSecret),
		Issuer:        cfg.SessionIssuer,
		TTL:           cfg.SessionTTL,
		JWKSURL:       cfg.JWKSURL,
		IdentityClaim: cfg.IdentityClaim,
		EmailClaim:    cfg.EmailClaim,
	}
}

// Authority signs accounts up and in and verifies session tokens. It keeps
// no per-caller state and is safe for concurrent use.
type Authority struct {
	accounts Accounts
	cfg      AuthorityConfig
	log      *zap.SugaredLogger

	idExpr    *jmespath.JMESPath
	emailExpr *jmespath.JMESPath
	jwks      *jwksCache
	now       func() time.Time
}

func NewAuthority(accounts Accounts, cfg AuthorityConfig, log *zap.SugaredLogger) (*Authority, error) {
	if len(cfg.Secret) == 0 && cfg.JWKSURL == "" {
		return nil, errors.New("identity: either a session secret or a JWKS url is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "dealergate"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if cfg.JWKSTTL <= 0 {
		cfg.JWKSTTL = 6 * time.Hour
	}
	if cfg.IdentityClaim == "" {
		cfg.IdentityClaim = "sub"
	}
	if cfg.EmailClaim == "" {
		cfg.EmailClaim = "email"
	}
	if cfg.MinPassword <= 0 {
		cfg.MinPassword = 8
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	idExpr, err := jmespath.Compile(cfg.IdentityClaim)
	if err != nil {
		return nil, fmt.Errorf("identity claim %q: %w", cfg.IdentityClaim, err)
	}
	emailExpr, err := jmespath.Compile(cfg.EmailClaim)
	if err != nil {
		return nil, fmt.Errorf("email claim %q: %w", cfg.EmailClaim, err)
	}
	a := &Authority{
		accounts:  accounts,
		cfg:       cfg,
		log:       log,
		idExpr:    idExpr,
		emailExpr: emailExpr,
		now:       time.Now,
	}
	if cfg.JWKSURL != "" {
		a.jwks = newJWKSCache(cfg.JWKSURL, cfg.JWKSTTL)
	}
	return a, nil
}

func (a *Authority) SignUp(ctx context.Context, email, password string, metadata map[string]any) (Identity, error) {
	if i := strings.IndexByte(email, '@'); i <= 0 || i == len(email)-1 {
		return Identity{}, fmt.Errorf("%w: malformed email", ErrInvalidCredentials)
	}
	if len(password) < a.cfg.MinPassword {
		return Identity{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Identity{}, ErrWeakPassword
		}
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}
	acct := Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Metadata:     metadata,
		CreatedAt:    a.now(),
	}
	if err := a.accounts.Create(ctx, acct); err != nil {
		return Identity{}, err
	}
	a.log.Infow("identity created", "identity_id", acct.ID)
	return Identity{ID: acct.ID, Email: acct.Email, Metadata: metadata}, nil
}

// DeleteIdentity removes an identity created by SignUp. Tokens already minted
// for it stay valid until they expire.
func (a *Authority) DeleteIdentity(ctx context.Context, id string) error {
	if err := a.accounts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete identity %s: %w", id, err)
	}
	a.log.Infow("identity deleted", "identity_id", id)
	return nil
}

func (a *Authority) SignIn(ctx context.Context, email, password string) (Session, error) {
	if len(a.cfg.Secret) == 0 {
		return Session{}, errors.New("identity: local sign-in disabled without a session secret")
	}
	acct, err := a.accounts.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	id := Identity{ID: acct.ID, Email: acct.Email, Metadata: acct.Metadata}
	return a.mint(id)
}

func (a *Authority) mint(id Identity) (Session, error) {
	now := a.now().Truncate(time.Second)
	exp := now.Add(a.cfg.TTL)
	b := jwt.NewBuilder().
		Issuer(a.cfg.Issuer).
		Subject(id.ID).
		IssuedAt(now).
		Expiration(exp).
		JwtID(uuid.NewString()).
		Claim("email", id.Email)
	if len(id.Metadata) > 0 {
		b = b.Claim(metadataClaim, id.Metadata)
	}
	tok, err := b.Build()
	if err != nil {
		return Session{}, fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, a.cfg.Secret))
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{AccessToken: string(signed), Identity: id, ExpiresAt: exp}, nil
}

// Verify accepts locally minted tokens and, when configured, tokens signed by
// the hosted provider's JWKS.
func (a *Authority) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	clock := jwt.WithClock(jwt.ClockFunc(a.now))

	var (
		jt  jwt.Token
		err = ErrInvalidToken
	)
	if len(a.cfg.Secret) > 0 {
		jt, err = jwt.Parse([]byte(token), jwt.WithKey(jwa.HS256, a.cfg.Secret),
			jwt.WithValidate(true), jwt.WithIssuer(a.cfg.Issuer), clock)
	}
	if err != nil && a.jwks != nil {
		set, ferr := a.jwks.get(ctx)
		if ferr != nil {
			a.log.Warnw("jwks fetch failed", "err", ferr)
			return Identity{}, ErrInvalidToken
		}
		jt, err = jwt.Parse([]byte(token), jwt.WithKeySet(set), jwt.WithValidate(true), clock)
	}
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	claims, err := jt.AsMap(ctx)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	sub := searchString(a.idExpr, claims)
	if sub == "" {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{ID: sub, Email: searchString(a.emailExpr, claims)}
	if md, ok := claims[metadataClaim].(map[string]any); ok {
		id.Metadata = md
	}
	return id, nil
}

func searchString(expr *jmespath.JMESPath, claims map[string]any) string {
	v, err := expr.Search(claims)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
