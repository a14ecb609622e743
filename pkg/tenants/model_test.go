package tenants

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseRole("super_admin")
	require.Error(t, err)
}

func TestProfileValidate_TenantLinkage(t *testing.T) {
	cases := []struct {
		name    string
		profile Profile
		ok      bool
	}{
		{"operator without tenant", Profile{ID: "u1", Role: RolePlatformOperator, Status: ProfileActive}, true},
		{"operator with tenant", Profile{ID: "u1", Role: RolePlatformOperator, TenantID: strPtr("t1"), Status: ProfileActive}, false},
		{"admin with tenant", Profile{ID: "u1", Role: RoleTenantAdmin, TenantID: strPtr("t1"), Status: ProfileActive}, true},
		{"admin without tenant", Profile{ID: "u1", Role: RoleTenantAdmin, Status: ProfileActive}, false},
		{"staff with empty tenant", Profile{ID: "u1", Role: RoleTenantStaff, TenantID: strPtr(""), Status: ProfilePending}, false},
		{"staff pending", Profile{ID: "u1", Role: RoleTenantStaff, TenantID: strPtr("t1"), Status: ProfilePending}, true},
		{"unknown role", Profile{ID: "u1", Role: "super_admin", Status: ProfileActive}, false},
		{"unknown status", Profile{ID: "u1", Role: RolePlatformOperator, Status: "banned"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.profile.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrIntegrity)
			}
		})
	}
}

func TestNewCode_Shape(t *testing.T) {
	a, b := NewCode(), NewCode()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[0-9A-F]{8}$`, a)
}
