package session

import (
	"context"
	"strings"

	"dealergate/internal/provisioning"
	"dealergate/pkg/identity"
)

// SignUpRequest covers both registration paths: a non-empty Code joins an
// existing dealership, otherwise DealershipName registers a new one.
type SignUpRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Phone          string `json:"phone"`
	DealershipName string `json:"dealership_name,omitempty"`
	Code           string `json:"code,omitempty"`
}

// Service is the session context handed to the rest of the application.
type Service struct {
	provider  identity.Provider
	resolver  *Resolver
	provision *provisioning.Service
}

func NewService(provider identity.Provider, resolver *Resolver, provision *provisioning.Service) *Service {
	return &Service{provider: provider, resolver: resolver, provision: provision}
}

func (s *Service) Snapshot() Snapshot { return s.resolver.Snapshot() }

func (s *Service) Resolver() *Resolver { return s.resolver }

func (s *Service) SignIn(ctx context.Context, username, password string) (identity.Session, error) {
	return s.provider.SignIn(ctx, identity.EmailFor(username), password)
}

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (provisioning.Result, error) {
	if strings.TrimSpace(req.Code) != "" {
		return s.provision.JoinTenant(ctx, provisioning.StaffSignUp{
			Code:     req.Code,
			Username: req.Username,
			Password: req.Password,
			Phone:    req.Phone,
		})
	}
	return s.provision.CreateTenantAndAdmin(ctx, provisioning.AdminSignUp{
		Username:   req.Username,
		Password:   req.Password,
		Phone:      req.Phone,
		TenantName: req.DealershipName,
	})
}

// SignOut re-enters Loading before the identity provider clears the session.
func (s *Service) SignOut(ctx context.Context) error {
	abort := s.resolver.BeginTransition()
	if err := s.provider.SignOut(ctx); err != nil {
		abort()
		return err
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context) Snapshot { return s.resolver.Refresh(ctx) }
