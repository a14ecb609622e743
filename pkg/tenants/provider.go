package tenants

import (
	"context"
)

// Store is the relational boundary for profiles and dealerships.
type Store interface {
	// Profile joined with its tenant (nil tenant for platform operators).
	ProfileWithTenant(ctx context.Context, identityID string) (Profile, *Tenant, error)
	TenantByCode(ctx context.Context, code string) (Tenant, error)
	InsertTenant(ctx context.Context, t Tenant) (Tenant, error)
	// Compensating action for a failed provisioning saga.
	DeleteTenant(ctx context.Context, id string) error
	// UpdateProfile upserts; rows violating the linkage invariants are rejected.
	UpdateProfile(ctx context.Context, p Profile) error
	InsertStaffRecord(ctx context.Context, r StaffRecord) error
}

// Invalidator is implemented by caching stores so a forced refresh can
// bypass stale entries.
type Invalidator interface {
	Invalidate(ctx context.Context, identityID string) error
}
