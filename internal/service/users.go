package service

import (
	"context"
	"fmt"
	"strings"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/ports"
)

const maxUserPageSize = 100

// UserServiceOptions groups dependencies for UserService.
type UserServiceOptions struct {
	API        ports.AccountAPI // Required
	Auth       *AuthService     // Required: resolves session credentials
	Identities *IdentityCache   // Optional: invalidated on profile update
}

// UserService exposes user administration and self-service profile edits,
// acting with the credentials of the calling console session.
type UserService struct {
	api        ports.AccountAPI
	auth       *AuthService
	identities *IdentityCache
}

// NewUserService constructs a new UserService.
func NewUserService(opts UserServiceOptions) *UserService {
	if opts.API == nil {
		panic("UserService requires an AccountAPI")
	}
	if opts.Auth == nil {
		panic("UserService requires an AuthService")
	}
	return &UserService{api: opts.API, auth: opts.Auth, identities: opts.Identities}
}

// List returns one page of users. Page defaults to 1 and limit is capped.
func (s *UserService) List(ctx context.Context, sessionID string, q domainauth.UserListQuery) (domainauth.UserList, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > maxUserPageSize {
		q.Limit = 10
	}
	q.SearchTerm = strings.TrimSpace(q.SearchTerm)
	if q.Status != "" && !q.Status.Valid() {
		return domainauth.UserList{}, apperrors.ValidationField("isActive", "unknown status filter")
	}
	if q.Role != "" && !q.Role.Valid() {
		return domainauth.UserList{}, apperrors.ValidationField("role", "unknown role filter")
	}

	session, err := s.auth.GetSession(ctx, sessionID)
	if err != nil {
		return domainauth.UserList{}, err
	}
	list, err := s.api.ListUsers(ctx, session.Credentials, q)
	if err != nil {
		return domainauth.UserList{}, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

// SetStatus approves, blocks or suspends a user.
func (s *UserService) SetStatus(ctx context.Context, sessionID, userID string, status domainauth.UserStatus) (domainauth.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domainauth.User{}, apperrors.ValidationField("id", "user ID is required")
	}
	if !status.Valid() {
		return domainauth.User{}, apperrors.ValidationField("isActive", "unknown status")
	}

	session, err := s.auth.GetSession(ctx, sessionID)
	if err != nil {
		return domainauth.User{}, err
	}
	u, err := s.api.SetUserStatus(ctx, session.Credentials, userID, status)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("set user status: %w", err)
	}
	return u, nil
}

// UpdateProfile edits the signed-in user's own profile. The cached identity is
// dropped so the next request sees the new name and picture.
func (s *UserService) UpdateProfile(ctx context.Context, sessionID string, in domainauth.ProfileUpdate) (domainauth.User, error) {
	if in.Empty() {
		return domainauth.User{}, apperrors.Validation("nothing to update")
	}
	if in.Email != nil {
		return domainauth.User{}, apperrors.ValidationField("email", "email cannot be changed")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return domainauth.User{}, apperrors.ValidationField("name", "name cannot be empty")
	}

	session, err := s.auth.GetSession(ctx, sessionID)
	if err != nil {
		return domainauth.User{}, err
	}
	u, err := s.api.UpdateMe(ctx, session.Credentials, in)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("update profile: %w", err)
	}
	if s.identities != nil {
		s.identities.Invalidate(sessionID)
	}
	return u, nil
}
