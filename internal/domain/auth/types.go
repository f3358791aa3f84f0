package auth

// Package auth contains domain-level types for identities, roles and console sessions.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an authorization tier of the account API.
// Keep string form; it is what the API returns and what cookies/logs carry.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleUser       Role = "USER"
)

// AllRoles returns every known role in registry order.
func AllRoles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleUser}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// ParseRole normalises a raw role string. Unknown values yield "" and false.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// RoleSet is the set of roles a guard accepts. An empty set means any
// authenticated identity is accepted.
type RoleSet map[Role]struct{}

// Roles builds a RoleSet from the given roles.
func Roles(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Empty reports whether no role restriction is configured.
func (s RoleSet) Empty() bool { return len(s) == 0 }

// Members lists the set's known roles in AllRoles order.
func (s RoleSet) Members() []Role {
	out := make([]Role, 0, len(s))
	for _, r := range AllRoles() {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Has reports whether r is a member of the set.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// UserStatus mirrors the account API's activation state.
type UserStatus string

const (
	StatusActive    UserStatus = "ACTIVE"
	StatusPending   UserStatus = "PENDING"
	StatusBlocked   UserStatus = "BLOCKED"
	StatusSuspended UserStatus = "SUSPENDED"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusBlocked, StatusSuspended:
		return true
	default:
		return false
	}
}

// Identity is the authenticated user as known to the console.
// Adapters map the account API payload into this shape.
type Identity struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	IsVerified bool       `json:"is_verified"`
	Status     UserStatus `json:"status,omitempty"`
}

// HasRole reports whether the identity's role is in set.
func (i Identity) HasRole(set RoleSet) bool { return set.Has(i.Role) }

// APICookie is a credential cookie issued by the account API.
// Stored server-side only; it never reaches the browser.
type APICookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// Session is the console-side record persisted for a signed-in browser.
// ID is the opaque value carried by the console session cookie.
type Session struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Credentials []APICookie `json:"credentials"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }
