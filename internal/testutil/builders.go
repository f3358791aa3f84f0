package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/acct-console/internal/domain/auth"
)

// IdentityBuilder provides a fluent interface for building identities for testing.
type IdentityBuilder struct {
	id auth.Identity
}

// NewIdentity creates an IdentityBuilder for a verified, active USER.
func NewIdentity() *IdentityBuilder {
	return &IdentityBuilder{
		id: auth.Identity{
			ID:         "user-1",
			Name:       "Test User",
			Email:      "user@example.com",
			Role:       auth.RoleUser,
			IsVerified: true,
			Status:     auth.StatusActive,
		},
	}
}

// WithID sets the identity ID.
func (b *IdentityBuilder) WithID(id string) *IdentityBuilder {
	b.id.ID = id
	return b
}

// WithEmail sets the email.
func (b *IdentityBuilder) WithEmail(email string) *IdentityBuilder {
	b.id.Email = email
	return b
}

// WithRole sets the role.
func (b *IdentityBuilder) WithRole(role auth.Role) *IdentityBuilder {
	b.id.Role = role
	return b
}

// Unverified marks the identity as not email-verified.
func (b *IdentityBuilder) Unverified() *IdentityBuilder {
	b.id.IsVerified = false
	return b
}

// Build returns the identity.
func (b *IdentityBuilder) Build() auth.Identity {
	return b.id
}

// SessionBuilder provides a fluent interface for building console sessions for testing.
type SessionBuilder struct {
	sess auth.Session
}

// NewSession creates a SessionBuilder with a random ID valid for one hour.
func NewSession() *SessionBuilder {
	now := time.Now()
	return &SessionBuilder{
		sess: auth.Session{
			ID:        uuid.NewString(),
			Email:     "user@example.com",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		},
	}
}

// WithID sets the session ID.
func (b *SessionBuilder) WithID(id string) *SessionBuilder {
	b.sess.ID = id
	return b
}

// WithEmail sets the email.
func (b *SessionBuilder) WithEmail(email string) *SessionBuilder {
	b.sess.Email = email
	return b
}

// WithCredentials sets the stored API cookies.
func (b *SessionBuilder) WithCredentials(creds ...auth.APICookie) *SessionBuilder {
	b.sess.Credentials = creds
	return b
}

// ExpiresIn sets the expiry relative to now.
func (b *SessionBuilder) ExpiresIn(d time.Duration) *SessionBuilder {
	b.sess.ExpiresAt = time.Now().Add(d)
	return b
}

// Build returns the session.
func (b *SessionBuilder) Build() auth.Session {
	return b.sess
}
