// Package nav holds the declarative navigation model and the pure projections
// derived from it: the router's flat route list and the grouped sidebar menu.
package nav

// ScreenKey references a renderable screen. The navigation model only holds
// the key; the presentation layer owns the handler behind it.
type ScreenKey string

// Visibility marks an item of role-partitioned navigation data.
// Empty means the item is not partitioned and is always shown.
type Visibility string

// VisibilityPublic marks an item shown to everyone, signed in or not.
const VisibilityPublic Visibility = "PUBLIC"

// Item is one navigable destination.
type Item struct {
	Title      string
	Path       string
	Screen     ScreenKey
	Visibility Visibility
}

// Group is an ordered, titled list of items. Order is significant.
type Group struct {
	Title string
	Items []Item
}

// Route is a router entry produced by Flatten.
type Route struct {
	Path   string    `json:"path"   yaml:"path"`
	Screen ScreenKey `json:"screen" yaml:"screen"`
}

// SidebarItem is a presentation-ready link.
type SidebarItem struct {
	Title    string `json:"title"     yaml:"title"`
	Path     string `json:"path"      yaml:"path"`
	IsActive bool   `json:"is_active" yaml:"is_active"`
}

// SidebarGroup is a presentation-ready titled section of links.
type SidebarGroup struct {
	Title string        `json:"title" yaml:"title"`
	Items []SidebarItem `json:"items" yaml:"items"`
}
