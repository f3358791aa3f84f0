package httpx

import (
	"net/http"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	"github.com/acme/acct-console/internal/domain/nav"
	"github.com/acme/acct-console/internal/navigation"
)

// UserVM is the signed-in user as shown in the chrome.
type UserVM struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Role       domainauth.Role `json:"role"`
	IsVerified bool            `json:"is_verified"`
}

// Layout is the page chrome shared by every screen: navbar for everyone,
// sidebar only on admin screens.
type Layout struct {
	Page      string             `json:"page"`
	Title     string             `json:"title"`
	Path      string             `json:"path"`
	User      *UserVM            `json:"user,omitempty"`
	Navbar    []nav.SidebarGroup `json:"navbar"`
	Sidebar   []nav.SidebarGroup `json:"sidebar,omitempty"`
	CSRFToken string             `json:"csrf_token,omitempty"`
}

// PageVM is the JSON document a screen renders.
type PageVM struct {
	Layout Layout `json:"layout"`
	Data   any    `json:"data,omitempty"`
}

type pageParams struct {
	Page    string
	Title   string
	Sidebar bool
	Data    any
}

// buildLayout projects the navbar and sidebar from the identity resolved for
// this request. Anonymous requests see public links only.
func buildLayout(r *http.Request, p pageParams) Layout {
	l := Layout{
		Page:      p.Page,
		Title:     p.Title,
		Path:      r.URL.Path,
		CSRFToken: GetCSRFToken(r),
	}

	id, ok := IdentityFromContext(r.Context())
	var role domainauth.Role
	if ok {
		role = id.Role
		l.User = &UserVM{ID: id.ID, Name: id.Name, Email: id.Email, Role: id.Role, IsVerified: id.IsVerified}
	}
	l.Navbar = nav.Project(navigation.NavbarLinks(), role, r.URL.Path)
	if p.Sidebar && ok {
		l.Sidebar = nav.Project(navigation.GroupsForRole(role), role, r.URL.Path)
	}
	return l
}

func writePage(w http.ResponseWriter, r *http.Request, status int, p pageParams) {
	WriteJSON(w, status, PageVM{Layout: buildLayout(r, p), Data: p.Data})
}
