package provisioning

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput   = errors.New("provisioning: invalid input")
	ErrTenantNotFound = errors.New("provisioning: dealership not found")
	// ErrTenantInactive also matches ErrTenantNotFound.
	ErrTenantInactive = fmt.Errorf("%w: dealership is not active", ErrTenantNotFound)
)

// PartialProvisioningError reports a registration that failed after rows
// were written. TenantID and IdentityID name what the failed attempt had
// created; either may be empty. Compensated tells whether all of it was
// removed again.
type PartialProvisioningError struct {
	TenantID        string
	IdentityID      string
	Step            string
	Compensated     bool
	CompensationErr error
	Err             error
}

func (e *PartialProvisioningError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("provisioning: %s failed, %s removed: %v", e.Step, e.written(), e.Err)
	}
	return fmt.Sprintf("provisioning: %s failed, %s left orphaned (%v): %v", e.Step, e.written(), e.CompensationErr, e.Err)
}

func (e *PartialProvisioningError) Unwrap() error { return e.Err }

func (e *PartialProvisioningError) written() string {
	var parts []string
	if e.TenantID != "" {
		parts = append(parts, "dealership "+e.TenantID)
	}
	if e.IdentityID != "" {
		parts = append(parts, "identity "+e.IdentityID)
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, " and ")
}
