package routing

import (
	"sort"
	"strings"
)

// DefaultNativeRoutes are the path prefixes served by the new application
// out of the box. Matching is case-sensitive.
var DefaultNativeRoutes = []string{
	"/",
	"/adopt",
	"/report",
	"/reports",
	"/reports/map",
	"/help",
	"/knowledge",
	"/success-stories",
	"/forum",
	"/login",
	"/register",
	"/admin",
}

// ParseRouteList splits a comma-separated route list, trimming whitespace
// and dropping empty entries. It never fails.
func ParseRouteList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RouteSet is the immutable set of native route prefixes.
type RouteSet struct {
	routes map[string]struct{}
	root   bool
}

// NewRouteSet merges defaults and overrides into a de-duplicated set.
func NewRouteSet(defaults, overrides []string) *RouteSet {
	rs := &RouteSet{routes: make(map[string]struct{}, len(defaults)+len(overrides))}
	for _, list := range [][]string{defaults, overrides} {
		for _, r := range list {
			if r == "" {
				continue
			}
			rs.routes[r] = struct{}{}
		}
	}
	_, rs.root = rs.routes["/"]
	return rs
}

// Contains reports whether path is owned by the native application.
//
// "/" only ever matches exactly. Any other route matches the path itself or
// the path followed by a '/' boundary, so "/report" covers "/report/42" but
// not "/reportxyz".
func (rs *RouteSet) Contains(path string) bool {
	if path == "/" {
		return rs.root
	}
	if rs.has(path) {
		return true
	}
	// Every '/' after the first byte marks a candidate prefix boundary.
	for i := 1; i < len(path); i++ {
		if path[i] == '/' && rs.has(path[:i]) {
			return true
		}
	}
	return false
}

func (rs *RouteSet) has(prefix string) bool {
	if prefix == "/" {
		return false
	}
	_, ok := rs.routes[prefix]
	return ok
}

// Len returns the number of distinct routes.
func (rs *RouteSet) Len() int {
	return len(rs.routes)
}

// Routes returns the routes in sorted order.
func (rs *RouteSet) Routes() []string {
	out := make([]string, 0, len(rs.routes))
	for r := range rs.routes {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
