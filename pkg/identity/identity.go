// Package identity holds the credential side of dealergate: accounts,
// session tokens and the provider contract consumed by the session resolver.
package identity

import (
	"context"
	"time"
)

// InternalDomain is appended to usernames to form the e-mail the identity
// store keys accounts by. It must stay stable for existing accounts.
const InternalDomain = "dealers.internal"

// EmailFor maps a username to its login e-mail. No normalisation is applied.
func EmailFor(username string) string {
	return username + "@" + InternalDomain
}

// Identity is an authenticated caller. ID is the profile key.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Session is a signed-in identity plus its bearer token.
type Session struct {
	AccessToken string    `json:"access_token"`
	Identity    Identity  `json:"identity"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Provider is the process-scoped identity contract: one current session and
// change notifications for it.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (Identity, error)
	SignOut(ctx context.Context) error
	// CurrentSession returns nil when nobody is signed in.
	CurrentSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers fn; callbacks run synchronously in
	// registration order. The returned func unsubscribes.
	OnSessionChange(fn func(*Session)) (unsubscribe func())
}

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
