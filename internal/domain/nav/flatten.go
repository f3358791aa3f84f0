package nav

// Flatten concatenates every group's items in group order, then item order,
// dropping titles. It performs no deduplication: conflicting paths are a
// router-registration concern.
func Flatten(groups []Group) []Route {
	n := 0
	for _, g := range groups {
		n += len(g.Items)
	}
	routes := make([]Route, 0, n)
	for _, g := range groups {
		for _, it := range g.Items {
			routes = append(routes, Route{Path: it.Path, Screen: it.Screen})
		}
	}
	return routes
}

// Conflict describes two routes that share a path but name different screens.
type Conflict struct {
	Path   string
	Kept   ScreenKey
	Shadow ScreenKey
}

// UniqueRoutes keeps the first route per path, in input order. Routes that
// repeat a path with the same screen are dropped silently; routes that repeat
// a path with a different screen are dropped and reported as conflicts.
func UniqueRoutes(routes []Route) ([]Route, []Conflict) {
	seen := make(map[string]ScreenKey, len(routes))
	out := make([]Route, 0, len(routes))
	var conflicts []Conflict
	for _, r := range routes {
		kept, dup := seen[r.Path]
		if !dup {
			seen[r.Path] = r.Screen
			out = append(out, r)
			continue
		}
		if kept != r.Screen {
			conflicts = append(conflicts, Conflict{Path: r.Path, Kept: kept, Shadow: r.Screen})
		}
	}
	return out, conflicts
}

// DuplicatePaths returns every path that appears more than once in groups,
// in order of second appearance.
func DuplicatePaths(groups []Group) []string {
	seen := make(map[string]int)
	var dups []string
	for _, r := range Flatten(groups) {
		seen[r.Path]++
		if seen[r.Path] == 2 {
			dups = append(dups, r.Path)
		}
	}
	return dups
}
