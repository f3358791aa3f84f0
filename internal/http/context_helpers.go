package httpx

import (
	"context"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
)

// Unexported context key types avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same keys.
type (
	sessionIDKey  struct{}
	resolutionKey struct{}
)

// identityResolution is the outcome of resolving the request's identity once.
type identityResolution struct {
	identity domainauth.Identity
	present  bool
	resolved bool
}

// SetSessionIDInContext returns a child context carrying the console session ID.
// An empty id returns ctx unchanged.
func SetSessionIDInContext(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the console session ID, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok && id != ""
}

// SetIdentityInContext records a resolved, present identity on ctx.
func SetIdentityInContext(ctx context.Context, id domainauth.Identity) context.Context {
	return setResolution(ctx, identityResolution{identity: id, present: true, resolved: true})
}

func setResolution(ctx context.Context, res identityResolution) context.Context {
	return context.WithValue(ctx, resolutionKey{}, res)
}

func resolutionFromContext(ctx context.Context) (identityResolution, bool) {
	res, ok := ctx.Value(resolutionKey{}).(identityResolution)
	return res, ok
}

// IdentityFromContext returns the signed-in identity resolved for this request.
func IdentityFromContext(ctx context.Context) (domainauth.Identity, bool) {
	res, ok := resolutionFromContext(ctx)
	if !ok || !res.present {
		return domainauth.Identity{}, false
	}
	return res.identity, true
}

// RoleFromContext returns the identity's role, or "" for anonymous requests.
func RoleFromContext(ctx context.Context) domainauth.Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}
