package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chariotek.org/internal/ids"
)

// AdminService provides admin account management on top of a Store. All
// mutations are permission-gated against the calling actor; role changes are
// additionally gated by the manage-role matrix.
type AdminService struct {
	store Store
	now   func() time.Time
}

// AdminServiceOption configures AdminService behavior.
type AdminServiceOption func(*AdminService)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) AdminServiceOption {
	return func(s *AdminService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewAdminService constructs an AdminService.
func NewAdminService(store Store, opts ...AdminServiceOption) (*AdminService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	s := &AdminService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewAdminUser carries the fields of an invite/creation request.
type NewAdminUser struct {
	Email       string
	DisplayName string
	Role        Role
	Password    string
}

// Create registers a new admin account on behalf of actor.
func (s *AdminService) Create(ctx context.Context, actor Actor, req NewAdminUser) (AdminUser, error) {
	if err := RequirePermission(&actor, PermAdminCreate); err != nil {
		return AdminUser{}, err
	}
	if !CanManageRole(actor.Role, req.Role) {
		return AdminUser{}, fmt.Errorf("%w: role %s may not create %s accounts", ErrUnauthorized, actor.Role, req.Role)
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return AdminUser{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if !ValidRole(req.Role) {
		return AdminUser{}, fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, req.Role)
	}
	hash, err := HashPassword(strings.TrimSpace(req.Password))
	if err != nil {
		return AdminUser{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user := AdminUser{
		ID:           ids.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         req.Role,
		IsActive:     true,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
		CreatedBy:    actor.ID,
	}
	if err := s.store.CreateAdminUser(ctx, user); err != nil {
		return AdminUser{}, err
	}
	return user, nil
}

// ChangeRole moves a user to a new role. The actor must be allowed to manage
// both the user's current role and the target role.
func (s *AdminService) ChangeRole(ctx context.Context, actor Actor, userID string, newRole Role) (AdminUser, error) {
	if err := RequirePermission(&actor, PermAdminUpdate); err != nil {
		return AdminUser{}, err
	}
	if !ValidRole(newRole) {
		return AdminUser{}, fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, newRole)
	}
	user, err := s.store.GetAdminUser(ctx, userID)
	if err != nil {
		return AdminUser{}, err
	}
	if !CanManageRole(actor.Role, user.Role) || !CanManageRole(actor.Role, newRole) {
		return AdminUser{}, fmt.Errorf("%w: role %s may not move %s to %s", ErrUnauthorized, actor.Role, user.Role, newRole)
	}
	now := s.now().UTC()
	user.Role = newRole
	user.UpdatedAt = &now
	user.UpdatedBy = actor.ID
	if err := s.store.UpdateAdminUser(ctx, user); err != nil {
		return AdminUser{}, err
	}
	return user, nil
}

// SetActive toggles the account's active flag. Accounts are never deleted.
func (s *AdminService) SetActive(ctx context.Context, actor Actor, userID string, active bool) (AdminUser, error) {
	if err := RequirePermission(&actor, PermAdminUpdate); err != nil {
		return AdminUser{}, err
	}
	user, err := s.store.GetAdminUser(ctx, userID)
	if err != nil {
		return AdminUser{}, err
	}
	if !CanManageRole(actor.Role, user.Role) {
		return AdminUser{}, fmt.Errorf("%w: role %s may not manage %s accounts", ErrUnauthorized, actor.Role, user.Role)
	}
	now := s.now().UTC()
	user.IsActive = active
	user.UpdatedAt = &now
	user.UpdatedBy = actor.ID
	if err := s.store.UpdateAdminUser(ctx, user); err != nil {
		return AdminUser{}, err
	}
	return user, nil
}

// Authenticate resolves credentials into an actor. Deactivated accounts
// fail even with a correct password.
func (s *AdminService) Authenticate(ctx context.Context, email, password string) (Actor, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.store.GetAdminUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Actor{}, ErrUnauthorized
		}
		return Actor{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Actor{}, ErrUnauthorized
	}
	if !user.IsActive {
		return Actor{}, fmt.Errorf("%w: account is deactivated", ErrUnauthorized)
	}
	now := s.now().UTC()
	user.LastLoginAt = &now
	if err := s.store.UpdateAdminUser(ctx, user); err != nil {
		return Actor{}, err
	}
	return Actor{ID: user.ID, Email: user.Email, Role: user.Role, IsActive: user.IsActive}, nil
}

// Get returns a single admin account.
func (s *AdminService) Get(ctx context.Context, actor Actor, userID string) (AdminUser, error) {
	if err := RequirePermission(&actor, PermAdminRead); err != nil {
		return AdminUser{}, err
	}
	return s.store.GetAdminUser(ctx, userID)
}

// List returns all admin accounts ordered by creation time.
func (s *AdminService) List(ctx context.Context, actor Actor) ([]AdminUser, error) {
	if err := RequirePermission(&actor, PermAdminRead); err != nil {
		return nil, err
	}
	return s.store.ListAdminUsers(ctx)
}

// Bootstrap creates the first super admin directly against the store when no
// accounts exist yet. It bypasses the permission gate deliberately; callers
// use it only during initial deployment.
func (s *AdminService) Bootstrap(ctx context.Context, email, password string) (AdminUser, error) {
	existing, err := s.store.ListAdminUsers(ctx)
	if err != nil {
		return AdminUser{}, err
	}
	if len(existing) > 0 {
		return AdminUser{}, fmt.Errorf("%w: admin accounts already exist", ErrAlreadyExists)
	}
	hash, err := HashPassword(strings.TrimSpace(password))
	if err != nil {
		return AdminUser{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user := AdminUser{
		ID:           ids.New(),
		Email:        strings.TrimSpace(strings.ToLower(email)),
		Role:         RoleSuperAdmin,
		IsActive:     true,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
		CreatedBy:    "bootstrap",
	}
	if err := s.store.CreateAdminUser(ctx, user); err != nil {
		return AdminUser{}, err
	}
	return user, nil
}
