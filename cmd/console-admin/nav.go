package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	"github.com/acme/acct-console/internal/domain/nav"
	"github.com/acme/acct-console/internal/navigation"
)

// routeRow is one protected route as the router registers it.
type routeRow struct {
	Path   string            `json:"path"   yaml:"path"`
	Screen nav.ScreenKey     `json:"screen" yaml:"screen"`
	Roles  []domainauth.Role `json:"roles"  yaml:"roles"`
}

func runRoutes(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("routes", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	routes, _ := nav.UniqueRoutes(nav.Flatten(navigation.AllGroups()))
	rows := make([]routeRow, 0, len(routes))
	for _, rt := range routes {
		rows = append(rows, routeRow{
			Path:   rt.Path,
			Screen: rt.Screen,
			Roles:  navigation.RolesForPath(rt.Path).Members(),
		})
	}

	return render(ctx.Out, *format, rows, func(tw *tabwriter.Writer) error {
		if err := writef(tw, "PATH\tSCREEN\tROLES\n"); err != nil {
			return err
		}
		for _, r := range rows {
			if err := writef(tw, "%s\t%s\t%s\n", r.Path, r.Screen, joinRoles(r.Roles)); err != nil {
				return err
			}
		}
		return nil
	})
}

func runSidebar(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("sidebar", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	roleFlag := fs.String("role", "", "role to project for (SUPER_ADMIN, ADMIN or USER)")
	path := fs.String("path", navigation.DashboardPath, "current path used to mark the active item")
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	role, ok := domainauth.ParseRole(*roleFlag)
	if !ok {
		return fmt.Errorf("sidebar: -role must be one of %s", joinRoles(domainauth.AllRoles()))
	}
	groups := nav.Project(navigation.GroupsForRole(role), role, *path)
	return render(ctx.Out, *format, groups, sidebarTable(groups))
}

func runNavbar(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("navbar", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	roleFlag := fs.String("role", "", "role to project for; empty means signed out")
	path := fs.String("path", "/", "current path used to mark the active item")
	format := formatFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var role domainauth.Role
	if *roleFlag != "" {
		parsed, ok := domainauth.ParseRole(*roleFlag)
		if !ok {
			return fmt.Errorf("navbar: -role must be empty or one of %s", joinRoles(domainauth.AllRoles()))
		}
		role = parsed
	}
	groups := nav.Project(navigation.NavbarLinks(), role, *path)
	return render(ctx.Out, *format, groups, sidebarTable(groups))
}

func sidebarTable(groups []nav.SidebarGroup) func(*tabwriter.Writer) error {
	return func(tw *tabwriter.Writer) error {
		if err := writef(tw, "GROUP\tTITLE\tPATH\tACTIVE\n"); err != nil {
			return err
		}
		for _, g := range groups {
			for _, it := range g.Items {
				active := ""
				if it.IsActive {
					active = "*"
				}
				if err := writef(tw, "%s\t%s\t%s\t%s\n", g.Title, it.Title, it.Path, active); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

var errNavigationInvalid = errors.New("navigation registry is invalid")

// runCheck validates the registry. Paths shared across roles are expected and
// only listed when they map to different screens.
func runCheck(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := navigation.Validate(); err != nil {
		if werr := writef(ctx.Out, "FAIL %v\n", err); werr != nil {
			return werr
		}
		return fmt.Errorf("%w: %w", errNavigationInvalid, err)
	}

	routes, conflicts := nav.UniqueRoutes(nav.Flatten(navigation.AllGroups()))
	for _, c := range conflicts {
		if err := writef(ctx.Out, "WARN %s maps to %s and %s; %s wins\n", c.Path, c.Kept, c.Shadow, c.Kept); err != nil {
			return err
		}
	}
	return writef(ctx.Out, "OK %d routes across %d roles\n", len(routes), len(domainauth.AllRoles()))
}

func joinRoles(roles []domainauth.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
