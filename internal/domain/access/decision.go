// Package access holds the guard decision model: an explicit state per
// protected screen derived from the resolved session identity and the
// screen's required roles.
package access

import "github.com/acme/acct-console/internal/domain/auth"

// Decision is the outcome of evaluating a guard.
type Decision int

const (
	// Pending means the identity has not resolved; nothing may be rendered.
	Pending Decision = iota
	// Allowed means the protected screen may be served.
	Allowed
	// RedirectLogin means there is no identity; send the caller to login.
	RedirectLogin
	// RedirectUnauthorized means the identity lacks a required role.
	RedirectUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Allowed:
		return "allowed"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	default:
		return "unknown"
	}
}

// Input is everything a guard needs to decide.
type Input struct {
	// Resolved is false while the identity fetch is still in flight.
	Resolved bool
	Identity auth.Identity
	Present  bool
	Required auth.RoleSet
	// Location is the attempted path, carried to login on RedirectLogin.
	Location string
}

// Result pairs a decision with the location to return to after login.
type Result struct {
	Decision Decision
	ReturnTo string
}

// Evaluate derives the guard decision. It is pure.
func Evaluate(in Input) Result {
	switch {
	case !in.Resolved:
		return Result{Decision: Pending}
	case !in.Present:
		return Result{Decision: RedirectLogin, ReturnTo: in.Location}
	case in.Required.Empty():
		return Result{Decision: Allowed}
	case in.Identity.HasRole(in.Required):
		return Result{Decision: Allowed}
	default:
		return Result{Decision: RedirectUnauthorized}
	}
}
