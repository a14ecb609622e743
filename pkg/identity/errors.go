package identity

import (
	"errors"
	"fmt"
)

// ErrCredential is the parent of every error a caller should show to the
// user as a sign-in/sign-up failure. These are never retried.
var ErrCredential = errors.New("identity")

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid login credentials", ErrCredential)
	ErrAccountExists      = fmt.Errorf("%w: account already exists", ErrCredential)
	ErrWeakPassword       = fmt.Errorf("%w: password too weak", ErrCredential)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrCredential)
)

// errAccountNotFound stays internal; sign-in reports ErrInvalidCredentials.
var errAccountNotFound = errors.New("identity: account not found")
