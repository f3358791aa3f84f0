package httpx

import (
	"net/http"
	"strings"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	"github.com/acme/acct-console/internal/domain/nav"
	"github.com/acme/acct-console/internal/navigation"
)

// APIHandlers serves the JSON API consumed by the console front end.
// Every route sits behind Guard, so an identity is always in context.
type APIHandlers struct {
	Users UserServiceInterface
}

// Me handles GET /api/me.
func (h *APIHandlers) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	WriteJSON(w, http.StatusOK, id)
}

// UpdateMe handles PATCH /api/me.
func (h *APIHandlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var in domainauth.ProfileUpdate
	if !DecodeJSON(w, r, &in) {
		return
	}
	sid, _ := SessionIDFromContext(r.Context())
	u, err := h.Users.UpdateProfile(r.Context(), sid, in)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

type navigationResponse struct {
	Role    domainauth.Role    `json:"role"`
	Path    string             `json:"path"`
	Sidebar []nav.SidebarGroup `json:"sidebar"`
	Navbar  []nav.SidebarGroup `json:"navbar"`
}

// Navigation handles GET /api/navigation?path=<current path>. The sidebar
// and navbar are projected for the caller's role with active flags for path.
func (h *APIHandlers) Navigation(w http.ResponseWriter, r *http.Request) {
	role := RoleFromContext(r.Context())
	current := r.URL.Query().Get("path")
	if current == "" || !strings.HasPrefix(current, "/") {
		current = navigation.DashboardPath
	}
	WriteJSON(w, http.StatusOK, navigationResponse{
		Role:    role,
		Path:    current,
		Sidebar: nav.Project(navigation.GroupsForRole(role), role, current),
		Navbar:  nav.Project(navigation.NavbarLinks(), role, current),
	})
}

// ListUsers handles GET /api/users.
func (h *APIHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	sid, _ := SessionIDFromContext(r.Context())
	list, err := h.Users.List(r.Context(), sid, parseUserListQuery(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

type statusRequest struct {
	Status domainauth.UserStatus `json:"status"`
}

// SetUserStatus handles PATCH /api/users/{id}/status.
func (h *APIHandlers) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if !DecodeJSON(w, r, &in) {
		return
	}
	sid, _ := SessionIDFromContext(r.Context())
	u, err := h.Users.SetStatus(r.Context(), sid, r.PathValue("id"), in.Status)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	SetHXTrigger(w, "userUpdated", map[string]string{"id": u.ID})
	WriteJSON(w, http.StatusOK, u)
}
