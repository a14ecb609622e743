package identity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Authenticator is the stateless credential service a Client talks to.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (Identity, error)
	Verify(ctx context.Context, token string) (Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// Client is the process-scoped Provider: it holds the one current session
// and tells subscribers whenever it changes.
type Client struct {
	auth Authenticator
	log  *zap.SugaredLogger
	now  func() time.Time

	mu      sync.Mutex
	current *Session
	subs    []subscriber
	nextSub int
}

type subscriber struct {
	id int
	fn func(*Session)
}

var _ Provider = (*Client)(nil)

func NewClient(auth Authenticator, log *zap.SugaredLogger) *Client {
	return &Client{auth: auth, log: log, now: time.Now}
}

// Restore adopts a previously issued token as the current session without
// notifying subscribers; it is meant to run before the resolver starts.
func (c *Client) Restore(ctx context.Context, token string, expiresAt time.Time) error {
	id, err := c.auth.Verify(ctx, token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.current = &Session{AccessToken: token, Identity: id, ExpiresAt: expiresAt}
	c.mu.Unlock()
	return nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	s, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	c.set(&s)
	return s, nil
}

// SignUp creates the identity only; it does not change the current session.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (Identity, error) {
	return c.auth.SignUp(ctx, email, password, metadata)
}

// DeleteIdentity removes an identity that never completed registration.
func (c *Client) DeleteIdentity(ctx context.Context, id string) error {
	return c.auth.DeleteIdentity(ctx, id)
}

func (c *Client) SignOut(ctx context.Context) error {
	c.set(nil)
	return nil
}

func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, nil
	}
	if c.current.Expired(c.now()) {
		c.log.Infow("session expired", "identity_id", c.current.Identity.ID)
		c.current = nil
		return nil, nil
	}
	s := *c.current
	return &s, nil
}

func (c *Client) OnSessionChange(fn func(*Session)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) set(s *Session) {
	c.mu.Lock()
	c.current = s
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		var arg *Session
		if s != nil {
			cp := *s
			arg = &cp
		}
		sub.fn(arg)
	}
}
