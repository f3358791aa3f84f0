package nav

import (
	"strings"

	"github.com/acme/acct-console/internal/domain/auth"
)

// Project derives the sidebar (or navbar) presentation from navigation groups.
//
// Role-partitioned items (non-empty Visibility) survive only when public or
// declared for role; role "" means no identity. Surviving items are
// deduplicated by path with first-seen order winning, then grouped by their
// enclosing group title. Empty groups are dropped.
func Project(groups []Group, role auth.Role, currentPath string) []SidebarGroup {
	seenPath := make(map[string]struct{})
	index := make(map[string]int)
	out := make([]SidebarGroup, 0, len(groups))

	for _, g := range groups {
		for _, it := range g.Items {
			if !visibleTo(it.Visibility, role) {
				continue
			}
			if _, dup := seenPath[it.Path]; dup {
				continue
			}
			seenPath[it.Path] = struct{}{}

			i, ok := index[g.Title]
			if !ok {
				i = len(out)
				index[g.Title] = i
				out = append(out, SidebarGroup{Title: g.Title})
			}
			out[i].Items = append(out[i].Items, SidebarItem{
				Title:    it.Title,
				Path:     it.Path,
				IsActive: IsActive(it.Path, currentPath),
			})
		}
	}
	return out
}

func visibleTo(v Visibility, role auth.Role) bool {
	switch v {
	case "", VisibilityPublic:
		return true
	default:
		return role != "" && v == Visibility(role)
	}
}

// IsActive reports whether a link to target should be highlighted at current.
// "/" matches exactly; other targets also match nested paths below them, so
// /admin/manage-user stays active on /admin/manage-user/42 but /about is not
// active on /about-us.
func IsActive(target, current string) bool {
	if target == "" {
		return false
	}
	if target == "/" {
		return current == "/"
	}
	return current == target || strings.HasPrefix(current, target+"/")
}
