// Package provisioning creates dealerships, their administrators and
// joining staff members.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"dealergate/internal/metrics"
	"dealergate/pkg/identity"
	"dealergate/pkg/tenants"
)

const compensationTimeout = 10 * time.Second

// Registrar is the part of the identity provider provisioning needs.
type Registrar interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (identity.Identity, error)
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	DeleteIdentity(ctx context.Context, id string) error
}

type Service struct {
	store   tenants.Store
	reg     Registrar
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func New(store tenants.Store, reg Registrar, log *zap.SugaredLogger, m *metrics.Metrics) *Service {
	return &Service{store: store, reg: reg, log: log, metrics: m}
}

type AdminSignUp struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Phone      string `json:"phone"`
	TenantName string `json:"dealership_name"`
}

type StaffSignUp struct {
	Code     string `json:"code"`
	Username string `json:"username"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// Result describes the rows written. Session is set only when the new
// account was signed in.
type Result struct {
	Identity identity.Identity `json:"identity"`
	Profile  tenants.Profile   `json:"profile"`
	Tenant   tenants.Tenant    `json:"tenant"`
	Session  *identity.Session `json:"session,omitempty"`
	SignedIn bool              `json:"signed_in"`
}

// CreateTenantAndAdmin registers a new dealership in pending state and its
// administrator. If the administrator cannot be created the dealership row
// and any identity created for it are deleted again.
func (s *Service) CreateTenantAndAdmin(ctx context.Context, in AdminSignUp) (Result, error) {
	const op = "create_tenant_and_admin"
	if err := validateUsername(in.Username); err != nil {
		s.metrics.Provisioning(op, "invalid")
		return Result{}, err
	}
	if in.Password == "" {
		s.metrics.Provisioning(op, "invalid")
		return Result{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	name := strings.TrimSpace(in.TenantName)
	if name == "" {
		s.metrics.Provisioning(op, "invalid")
		return Result{}, fmt.Errorf("%w: dealership name is required", ErrInvalidInput)
	}

	tenant, err := s.store.InsertTenant(ctx, tenants.Tenant{Name: name, Status: tenants.TenantPending})
	if err != nil {
		s.metrics.Provisioning(op, "tenant_failed")
		return Result{}, fmt.Errorf("insert dealership: %w", err)
	}
	log := s.log.With("tenant_id", tenant.ID, "username", in.Username)

	id, err := s.reg.SignUp(ctx, identity.EmailFor(in.Username), in.Password, map[string]any{
		"username": in.Username,
		"phone":    in.Phone,
	})
	if err != nil {
		return Result{}, s.compensate(ctx, op, "identity sign-up", tenant.ID, "", err)
	}

	profile := tenants.Profile{
		ID:       id.ID,
		Username: in.Username,
		Role:     tenants.RoleTenantAdmin,
		TenantID: &tenant.ID,
		Status:   tenants.ProfileActive,
		Phone:    in.Phone,
	}
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return Result{}, s.compensate(ctx, op, "profile link", tenant.ID, id.ID, err)
	}

	if err := s.store.InsertStaffRecord(ctx, tenants.StaffRecord{
		TenantID:  tenant.ID,
		ProfileID: id.ID,
		Name:      in.Username,
		Phone:     in.Phone,
		Position:  "admin",
	}); err != nil {
		log.Warnw("staff record not created", "err", err)
	}

	res := Result{Identity: id, Profile: profile, Tenant: tenant}
	sess, err := s.reg.SignIn(ctx, identity.EmailFor(in.Username), in.Password)
	if err != nil {
		log.Warnw("auto sign-in after registration failed", "err", err)
	} else {
		res.Session = &sess
		res.SignedIn = true
	}
	log.Infow("dealership registered", "code", tenant.Code)
	s.metrics.Provisioning(op, "ok")
	return res, nil
}

// compensate removes what the saga wrote before step failed: the identity
// first, then the dealership. Blank ids are skipped.
func (s *Service) compensate(ctx context.Context, op, step, tenantID, identityID string, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	perr := &PartialProvisioningError{TenantID: tenantID, IdentityID: identityID, Step: step, Err: cause}
	var errs []error
	if identityID != "" {
		if err := s.reg.DeleteIdentity(cctx, identityID); err != nil {
			errs = append(errs, err)
		}
	}
	if tenantID != "" {
		if err := s.store.DeleteTenant(cctx, tenantID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		perr.CompensationErr = errors.Join(errs...)
		s.log.Errorw("compensation failed, registration orphaned", "tenant_id", tenantID, "identity_id", identityID,
			"step", step, "err", perr.CompensationErr, "cause", cause)
		s.metrics.Provisioning(op, "orphaned")
		return perr
	}
	perr.Compensated = true
	s.log.Warnw("registration rolled back", "tenant_id", tenantID, "identity_id", identityID, "step", step, "cause", cause)
	s.metrics.Provisioning(op, "compensated")
	return perr
}

// JoinTenant registers a staff member against an active dealership. The
// profile starts pending and the caller is not signed in.
func (s *Service) JoinTenant(ctx context.Context, in StaffSignUp) (Result, error) {
	const op = "join_tenant"
	code := strings.TrimSpace(in.Code)
	if code == "" {
		s.metrics.Provisioning(op, "invalid")
		return Result{}, fmt.Errorf("%w: dealership code is required", ErrInvalidInput)
	}
	if err := validateUsername(in.Username); err != nil {
		s.metrics.Provisioning(op, "invalid")
		return Result{}, err
	}
	if in.Password == "" {
		s.metrics.Provisioning(op, "invalid")
		return Result{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	tenant, err := s.store.TenantByCode(ctx, code)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			s.metrics.Provisioning(op, "tenant_not_found")
			return Result{}, ErrTenantNotFound
		}
		s.metrics.Provisioning(op, "error")
		return Result{}, fmt.Errorf("lookup dealership: %w", err)
	}
	if tenant.Status != tenants.TenantActive {
		s.metrics.Provisioning(op, "tenant_inactive")
		return Result{}, ErrTenantInactive
	}

	id, err := s.reg.SignUp(ctx, identity.EmailFor(in.Username), in.Password, map[string]any{
		"username": in.Username,
		"phone":    in.Phone,
	})
	if err != nil {
		s.metrics.Provisioning(op, "identity_failed")
		return Result{}, err
	}

	profile := tenants.Profile{
		ID:       id.ID,
		Username: in.Username,
		Role:     tenants.RoleTenantStaff,
		TenantID: &tenant.ID,
		Status:   tenants.ProfilePending,
		Phone:    in.Phone,
	}
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return Result{}, s.compensate(ctx, op, "profile link", "", id.ID, err)
	}
	s.log.Infow("staff joined dealership", "tenant_id", tenant.ID, "identity_id", id.ID)
	s.metrics.Provisioning(op, "ok")
	return Result{Identity: id, Profile: profile, Tenant: tenant}, nil
}

// CreatePlatformOperator registers an operator account. Operators have no
// self-service sign-up; this backs the bootstrap flag and the dev seed.
func (s *Service) CreatePlatformOperator(ctx context.Context, username, password string) (Result, error) {
	const op = "create_platform_operator"
	if err := validateUsername(username); err != nil {
		s.metrics.Provisioning(op, "invalid")
		return Result{}, err
	}
	id, err := s.reg.SignUp(ctx, identity.EmailFor(username), password, map[string]any{"username": username})
	if err != nil {
		s.metrics.Provisioning(op, "identity_failed")
		return Result{}, err
	}
	profile := tenants.Profile{
		ID:       id.ID,
		Username: username,
		Role:     tenants.RolePlatformOperator,
		Status:   tenants.ProfileActive,
	}
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return Result{}, s.compensate(ctx, op, "profile link", "", id.ID, err)
	}
	s.log.Infow("platform operator created", "identity_id", id.ID, "username", username)
	s.metrics.Provisioning(op, "ok")
	return Result{Identity: id, Profile: profile}, nil
}

func validateUsername(u string) error {
	if u == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	for _, r := range u {
		if unicode.IsSpace(r) || r == '@' {
			return fmt.Errorf("%w: username must not contain spaces or '@'", ErrInvalidInput)
		}
	}
	return nil
}
