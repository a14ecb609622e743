// Package session resolves who the caller is: identity, profile and
// dealership, published as immutable snapshots.
package session

import (
	"context"

	"dealergate/pkg/identity"
	"dealergate/pkg/tenants"
)

// Snapshot is the published session state. Values are never mutated after
// publication; a new snapshot replaces the old one wholesale.
type Snapshot struct {
	Identity *identity.Identity `json:"identity"`
	Profile  *tenants.Profile   `json:"profile"`
	Tenant   *tenants.Tenant    `json:"tenant"`
	Loading  bool               `json:"loading"`
	// Stalled marks a profile fetch that timed out.
	Stalled bool `json:"stalled,omitempty"`
}

// Authenticated reports whether an identity is present.
func (s Snapshot) Authenticated() bool { return s.Identity != nil }

type snapshotKey struct{}

// WithSnapshot stores s on ctx so nested guards read the same value.
func WithSnapshot(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, s)
}

// FromContext returns the snapshot stored by WithSnapshot.
func FromContext(ctx context.Context) (Snapshot, bool) {
	s, ok := ctx.Value(snapshotKey{}).(Snapshot)
	return s, ok
}
