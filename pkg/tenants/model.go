package tenants

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrIntegrity     = errors.New("profile violates tenant linkage invariant")
	ErrDuplicateCode = errors.New("tenant code already in use")
)

// Role is the closed set of application roles. Switches over Role must list
// every member and deny in default.
type Role string

const (
	RolePlatformOperator Role = "platform_operator"
	RoleTenantAdmin      Role = "tenant_admin"
	RoleTenantStaff      Role = "tenant_staff"
)

// Roles lists every Role in declaration order.
var Roles = []Role{RolePlatformOperator, RoleTenantAdmin, RoleTenantStaff}

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(s)); r {
	case RolePlatformOperator, RoleTenantAdmin, RoleTenantStaff:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// TenantScoped reports whether the role must be linked to exactly one tenant.
func (r Role) TenantScoped() bool {
	switch r {
	case RoleTenantAdmin, RoleTenantStaff:
		return true
	case RolePlatformOperator:
		return false
	default:
		return false
	}
}

type ProfileStatus string

const (
	ProfileActive  ProfileStatus = "active"
	ProfilePending ProfileStatus = "pending" // awaiting tenant-admin approval
)

type TenantStatus string

const (
	TenantPending  TenantStatus = "pending"
	TenantActive   TenantStatus = "active"
	TenantInactive TenantStatus = "inactive"
	TenantRejected TenantStatus = "rejected"
)

// Tenant is a dealership, the unit of data isolation.
type Tenant struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Code   string       `json:"code"` // join code handed to staff
	Status TenantStatus `json:"status"`
}

// Profile is the application-level user record keyed by identity id.
type Profile struct {
	ID       string        `json:"id"`
	Username string        `json:"username"`
	Role     Role          `json:"role"`
	TenantID *string       `json:"tenant_id"`
	Status   ProfileStatus `json:"status"`
	Phone    string        `json:"phone,omitempty"`
}

// StaffRecord is the employee row created alongside a dealership administrator.
type StaffRecord struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Position  string `json:"position"`
}

// Validate enforces the linkage invariants: platform operators carry no
// tenant, tenant-scoped roles carry exactly one.
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrIntegrity)
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	switch p.Status {
	case ProfileActive, ProfilePending:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrIntegrity, p.Status)
	}
	linked := p.TenantID != nil && *p.TenantID != ""
	if p.Role.TenantScoped() && !linked {
		return fmt.Errorf("%w: role %s requires a tenant", ErrIntegrity, p.Role)
	}
	if !p.Role.TenantScoped() && linked {
		return fmt.Errorf("%w: role %s must not belong to a tenant", ErrIntegrity, p.Role)
	}
	return nil
}

// Linked reports whether the profile carries a tenant id.
func (p Profile) Linked() bool { return p.TenantID != nil && *p.TenantID != "" }

// NewCode derives an 8 character join code.
func NewCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
