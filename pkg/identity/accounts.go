package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Account is a stored credential. PasswordHash is a bcrypt hash.
type Account struct {
	ID           string
	Email        string
	PasswordHash []byte
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Accounts persists credentials keyed by e-mail.
type Accounts interface {
	// Create fails with ErrAccountExists when the e-mail is taken.
	Create(ctx context.Context, a Account) error
	ByEmail(ctx context.Context, email string) (Account, error)
	// Delete removes the account with the given id. Deleting a missing
	// account is not an error.
	Delete(ctx context.Context, id string) error
}

type memAccounts struct {
	mu      sync.RWMutex
	byEmail map[string]Account
}

// NewMemoryAccounts keeps accounts in process memory (dev/tests).
func NewMemoryAccounts() Accounts {
	return &memAccounts{byEmail: map[string]Account{}}
}

func (m *memAccounts) Create(ctx context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[a.Email]; ok {
		return ErrAccountExists
	}
	m.byEmail[a.Email] = a
	return nil
}

func (m *memAccounts) ByEmail(ctx context.Context, email string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byEmail[email]
	if !ok {
		return Account{}, errAccountNotFound
	}
	return a, nil
}

func (m *memAccounts) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, a := range m.byEmail {
		if a.ID == id {
			delete(m.byEmail, email)
		}
	}
	return nil
}

type pgAccounts struct {
	dbPool *pgxpool.Pool
}

// NewPostgresAccounts stores accounts in the identities table.
func NewPostgresAccounts(dbPool *pgxpool.Pool) Accounts {
	return &pgAccounts{dbPool: dbPool}
}

// EnsureSchema creates the identities table if missing.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS identities (
  id uuid PRIMARY KEY,
  email text NOT NULL UNIQUE,
  password_hash bytea NOT NULL,
  metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

func (p *pgAccounts) Create(ctx context.Context, a Account) error {
	md, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("identity metadata: %w", err)
	}
	_, err = p.dbPool.Exec(ctx, `INSERT INTO identities(id,email,password_hash,metadata) VALUES ($1,$2,$3,$4::jsonb)`,
		a.ID, a.Email, a.PasswordHash, string(md))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAccountExists
	}
	return err
}

func (p *pgAccounts) ByEmail(ctx context.Context, email string) (Account, error) {
	var (
		a  Account
		md []byte
	)
	err := p.dbPool.QueryRow(ctx, `SELECT id::text, email, password_hash, metadata, created_at FROM identities WHERE email=$1`, email).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &md, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, errAccountNotFound
		}
		return Account{}, err
	}
	if len(md) > 0 {
		_ = json.Unmarshal(md, &a.Metadata)
	}
	return a, nil
}

func (p *pgAccounts) Delete(ctx context.Context, id string) error {
	_, err := p.dbPool.Exec(ctx, `DELETE FROM identities WHERE id=$1`, id)
	return err
}
