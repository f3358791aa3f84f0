package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	"github.com/acme/acct-console/internal/domain/nav"
	"github.com/acme/acct-console/internal/navigation"
	"github.com/acme/acct-console/internal/service"
)

// UserServiceInterface defines the user operations the handlers depend on.
type UserServiceInterface interface {
	List(ctx context.Context, sessionID string, q domainauth.UserListQuery) (domainauth.UserList, error)
	SetStatus(ctx context.Context, sessionID, userID string, status domainauth.UserStatus) (domainauth.User, error)
	UpdateProfile(ctx context.Context, sessionID string, in domainauth.ProfileUpdate) (domainauth.User, error)
}

var _ UserServiceInterface = (*service.UserService)(nil)

// ScreenHandlers serves the protected console screens.
type ScreenHandlers struct {
	Auth   AuthServiceInterface
	Users  UserServiceInterface
	Logger *slog.Logger
}

func (h *ScreenHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Registry maps each screen key the navigation table names to its handler.
func (h *ScreenHandlers) Registry() map[nav.ScreenKey]http.Handler {
	return map[nav.ScreenKey]http.Handler{
		navigation.ScreenAnalytics:      methods{http.MethodGet: h.Analytics},
		navigation.ScreenManageUser:     methods{http.MethodGet: h.ManageUser},
		navigation.ScreenChangePassword: methods{http.MethodGet: h.ChangePasswordView, http.MethodPost: h.ChangePassword},
		navigation.ScreenProfile:        methods{http.MethodGet: h.ProfileView, http.MethodPost: h.UpdateProfile},
	}
}

// methods dispatches a screen path by request method.
type methods map[string]http.HandlerFunc

func (m methods) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	if h, ok := m[method]; ok {
		h(w, r)
		return
	}
	w.Header().Set("Allow", strings.Join(slices.Sorted(maps.Keys(m)), ", "))
	WriteError(w, ErrorParams{
		Code:    http.StatusMethodNotAllowed,
		ErrCode: "method_not_allowed",
		Err:     fmt.Errorf("method %s not allowed", r.Method),
	})
}

// statusCounts tallies users per account status.
type statusCounts struct {
	Total  int                           `json:"total"`
	Status map[domainauth.UserStatus]int `json:"by_status"`
}

var trackedStatuses = []domainauth.UserStatus{
	domainauth.StatusActive,
	domainauth.StatusPending,
	domainauth.StatusBlocked,
	domainauth.StatusSuspended,
}

// Analytics renders the dashboard. Administrators also get user counts,
// fetched concurrently per status; the counts are left out when the
// account API cannot supply them.
func (h *ScreenHandlers) Analytics(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	data := map[string]any{"greeting": "Welcome back, " + id.Name}

	if navigation.RolesForPath(navigation.ManageUserPath).Has(id.Role) {
		if counts, err := h.countUsers(r); err != nil {
			h.logger().WarnContext(r.Context(), "dashboard user counts unavailable", "error", err)
		} else {
			data["users"] = counts
		}
	}

	writePage(w, r, http.StatusOK, pageParams{Page: "analytics", Title: "Analytics", Sidebar: true, Data: data})
}

func (h *ScreenHandlers) countUsers(r *http.Request) (statusCounts, error) {
	sid, _ := SessionIDFromContext(r.Context())
	counts := statusCounts{Status: make(map[domainauth.UserStatus]int, len(trackedStatuses))}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(r.Context())
	for _, st := range trackedStatuses {
		g.Go(func() error {
			list, err := h.Users.List(ctx, sid, domainauth.UserListQuery{Status: st, Limit: 1})
			if err != nil {
				return err
			}
			mu.Lock()
			counts.Status[st] = list.Meta.Total
			counts.Total += list.Meta.Total
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return statusCounts{}, err
	}
	return counts, nil
}

// ManageUser renders one page of the user table.
func (h *ScreenHandlers) ManageUser(w http.ResponseWriter, r *http.Request) {
	sid, _ := SessionIDFromContext(r.Context())
	q := parseUserListQuery(r)
	list, err := h.Users.List(r.Context(), sid, q)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	writePage(w, r, http.StatusOK, pageParams{
		Page:    "manage-user",
		Title:   "Manage User",
		Sidebar: true,
		Data: map[string]any{
			"users": list.Users,
			"meta":  list.Meta,
			"filters": map[string]string{
				"searchTerm": q.SearchTerm,
				"isActive":   string(q.Status),
				"role":       string(q.Role),
			},
		},
	})
}

// parseUserListQuery reads paging and filters from the query string.
// Malformed numbers fall back to service defaults.
func parseUserListQuery(r *http.Request) domainauth.UserListQuery {
	v := r.URL.Query()
	page, limit := parsePaging(r)
	return domainauth.UserListQuery{
		Page:       page,
		Limit:      limit,
		SearchTerm: v.Get("searchTerm"),
		Status:     domainauth.UserStatus(v.Get("isActive")),
		Role:       domainauth.Role(v.Get("role")),
	}
}

// ChangePasswordView renders the password form.
func (h *ScreenHandlers) ChangePasswordView(w http.ResponseWriter, r *http.Request) {
	writePage(w, r, http.StatusOK, pageParams{
		Page:    "change-password",
		Title:   "Change Password",
		Sidebar: true,
		Data:    map[string]any{"updated": r.URL.Query().Get("updated") == "1"},
	})
}

type changePasswordForm struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword handles the password form submission.
func (h *ScreenHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in changePasswordForm
	if !DecodeInput(w, r, &in) {
		return
	}
	sid, _ := SessionIDFromContext(r.Context())
	err := h.Auth.ChangePassword(r.Context(), sid, service.ChangePasswordInput{
		OldPassword: in.OldPassword,
		NewPassword: in.NewPassword,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	respondDone(w, r, navigation.ChangePasswordPath+"?updated=1", http.StatusOK, map[string]any{"updated": true})
}

// ProfileView renders the signed-in user's profile.
func (h *ScreenHandlers) ProfileView(w http.ResponseWriter, r *http.Request) {
	writePage(w, r, http.StatusOK, pageParams{
		Page:    "profile",
		Title:   "Profile Settings",
		Sidebar: true,
		Data:    map[string]any{"updated": r.URL.Query().Get("updated") == "1"},
	})
}

// UpdateProfile handles the profile form submission.
func (h *ScreenHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in domainauth.ProfileUpdate
	if !DecodeInput(w, r, &in) {
		return
	}
	sid, _ := SessionIDFromContext(r.Context())
	u, err := h.Users.UpdateProfile(r.Context(), sid, in)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	SetHXTrigger(w, "profileUpdated", nil)
	respondDone(w, r, navigation.ProfilePath+"?updated=1", http.StatusOK, u)
}
