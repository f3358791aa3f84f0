// Package navigation is the console's role registry: the static per-role
// navigation table the router, the sidebar and the navbar are derived from.
package navigation

import (
	"fmt"

	"github.com/acme/acct-console/internal/domain/auth"
	"github.com/acme/acct-console/internal/domain/nav"
)

// Screen keys resolved by the presentation layer.
const (
	ScreenAnalytics      nav.ScreenKey = "analytics"
	ScreenManageUser     nav.ScreenKey = "manage-user"
	ScreenChangePassword nav.ScreenKey = "change-password"
	ScreenProfile        nav.ScreenKey = "profile"
)

// Screen paths. DashboardPath is the admin index; GET /admin lands here.
const (
	DashboardPath      = "/admin/analytics"
	ManageUserPath     = "/admin/manage-user"
	ChangePasswordPath = "/admin/change-password"
	ProfilePath        = "/admin/profile"
)

var adminGroups = []nav.Group{
	{
		Title: "Admin Dashboard",
		Items: []nav.Item{
			{Title: "Analytics", Path: DashboardPath, Screen: ScreenAnalytics},
			{Title: "Manage User", Path: ManageUserPath, Screen: ScreenManageUser},
			{Title: "Change Password", Path: ChangePasswordPath, Screen: ScreenChangePassword},
			{Title: "Profile Settings", Path: ProfilePath, Screen: ScreenProfile},
		},
	},
}

var userGroups = []nav.Group{
	{
		Title: "Dashboard",
		Items: []nav.Item{
			{Title: "Analytics", Path: DashboardPath, Screen: ScreenAnalytics},
			{Title: "Change Password", Path: ChangePasswordPath, Screen: ScreenChangePassword},
			{Title: "Profile Settings", Path: ProfilePath, Screen: ScreenProfile},
		},
	},
}

var roleGroups = map[auth.Role][]nav.Group{
	auth.RoleSuperAdmin: adminGroups,
	auth.RoleAdmin:      adminGroups,
	auth.RoleUser:       userGroups,
}

// navbarLinks mixes public links with one dashboard link per role.
var navbarLinks = []nav.Group{
	{
		Title: "Main",
		Items: []nav.Item{
			{Title: "Home", Path: "/", Visibility: nav.VisibilityPublic},
			{Title: "About", Path: "/about", Visibility: nav.VisibilityPublic},
			{Title: "Features", Path: "/features", Visibility: nav.VisibilityPublic},
			{Title: "Faq", Path: "/faq", Visibility: nav.VisibilityPublic},
			{Title: "Contact", Path: "/contact", Visibility: nav.VisibilityPublic},
			{Title: "Dashboard", Path: DashboardPath, Visibility: nav.Visibility(auth.RoleSuperAdmin)},
			{Title: "Dashboard", Path: DashboardPath, Visibility: nav.Visibility(auth.RoleAdmin)},
			{Title: "Dashboard", Path: DashboardPath, Visibility: nav.Visibility(auth.RoleUser)},
		},
	},
}

// GroupsForRole returns the navigation groups for role. Unknown or absent
// roles get an empty slice. The result is a copy; callers may not mutate
// the registry through it.
func GroupsForRole(role auth.Role) []nav.Group {
	return cloneGroups(roleGroups[role])
}

// AllGroups returns every role's groups concatenated in role order. Paths
// repeat across roles; route registration deduplicates them.
func AllGroups() []nav.Group {
	var out []nav.Group
	for _, r := range auth.AllRoles() {
		out = append(out, cloneGroups(roleGroups[r])...)
	}
	return out
}

// NavbarLinks returns the role-partitioned navbar table.
func NavbarLinks() []nav.Group {
	return cloneGroups(navbarLinks)
}

// RolesForPath returns the roles whose navigation reaches path. The guard
// for a screen route requires membership in this set.
func RolesForPath(path string) auth.RoleSet {
	set := auth.Roles()
	for _, r := range auth.AllRoles() {
		for _, g := range roleGroups[r] {
			for _, it := range g.Items {
				if it.Path == path {
					set[r] = struct{}{}
				}
			}
		}
	}
	return set
}

// Validate checks that paths are unique within each role's navigation and
// that every role has groups registered.
func Validate() error {
	for _, r := range auth.AllRoles() {
		groups, ok := roleGroups[r]
		if !ok || len(groups) == 0 {
			return fmt.Errorf("role %s: no navigation groups registered", r)
		}
		if dups := nav.DuplicatePaths(groups); len(dups) > 0 {
			return fmt.Errorf("role %s: duplicate navigation paths %v", r, dups)
		}
		for _, rt := range nav.Flatten(groups) {
			if rt.Screen == "" {
				return fmt.Errorf("role %s: path %s has no screen", r, rt.Path)
			}
		}
	}
	return nil
}

func cloneGroups(groups []nav.Group) []nav.Group {
	out := make([]nav.Group, len(groups))
	for i, g := range groups {
		out[i] = nav.Group{Title: g.Title, Items: append([]nav.Item(nil), g.Items...)}
	}
	return out
}
