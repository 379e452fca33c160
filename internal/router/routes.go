package router

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// PrefixWildcard marks a route key as a prefix match: "memory*" matches
// "memory", "memory.store" and "Memory_Store". Prefix matching ignores case;
// exact keys do not.
const PrefixWildcard = "*"

type prefixRoute struct {
	key     string
	prefix  string // lower-cased
	targets []string
}

// RouteTable maps operation names to target component ids. Lookup order is
// exact match, then the longest case-insensitive prefix, then the default
// component.
// A RouteTable is immutable once built.
type RouteTable struct {
	exact    map[string][]string
	prefixes []prefixRoute
	def      string
}

// NewRouteTable builds a table from route keys to target ids. Keys ending in
// "*" are prefix routes. defaultComponent receives unmatched operations.
func NewRouteTable(defaultComponent string, routes map[string][]string) (*RouteTable, error) {
	t := &RouteTable{
		exact: make(map[string][]string),
		def:   defaultComponent,
	}

	seenPrefix := make(map[string]string)
	for key, targets := range routes {
		if len(targets) == 0 {
			return nil, fmt.Errorf("route %q has no targets", key)
		}
		for _, id := range targets {
			if id == "" {
				return nil, fmt.Errorf("route %q has an empty target", key)
			}
		}
		targets = dedupe(targets)

		if prefix, ok := strings.CutSuffix(key, PrefixWildcard); ok {
			if prefix == "" {
				return nil, fmt.Errorf("route %q: use the default component instead of a bare wildcard", key)
			}
			prefix = strings.ToLower(prefix)
			if other, dup := seenPrefix[prefix]; dup {
				return nil, fmt.Errorf("route %q duplicates %q", key, other)
			}
			seenPrefix[prefix] = key
			t.prefixes = append(t.prefixes, prefixRoute{key: key, prefix: prefix, targets: targets})
			continue
		}
		if key == "" {
			return nil, fmt.Errorf("route key must not be empty")
		}
		t.exact[key] = targets
	}

	// Longest prefix first; ties broken alphabetically for stable output.
	sort.Slice(t.prefixes, func(i, j int) bool {
		a, b := t.prefixes[i].prefix, t.prefixes[j].prefix
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return t, nil
}

// DefaultRoutes is the route set used when no routes are configured.
func DefaultRoutes() map[string][]string {
	return map[string][]string{
		"agent*":    {"slice_agent"},
		"tool*":     {"slice_tools"},
		"memory*":   {"slice_memory"},
		"comm*":     {"slice_communication", "slice_session"},
		"session*":  {"slice_session"},
		"provider*": {"slice_providers"},
		"skill*":    {"slice_skills"},
		"event*":    {"slice_eventbus"},
	}
}

// DefaultComponent is the fallback target used with DefaultRoutes.
const DefaultComponent = "slice_agent"

// Resolve returns the targets for an operation and whether the default
// component was used because nothing matched. The returned slice is a copy.
func (t *RouteTable) Resolve(operation string) ([]string, bool) {
	if targets, ok := t.exact[operation]; ok {
		return slices.Clone(targets), false
	}
	lower := strings.ToLower(operation)
	for _, p := range t.prefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return slices.Clone(p.targets), false
		}
	}
	if t.def == "" {
		return nil, true
	}
	return []string{t.def}, true
}

// Default returns the fallback component id.
func (t *RouteTable) Default() string {
	return t.def
}

// RouteEntry is one row of Entries.
type RouteEntry struct {
	Key     string
	Targets []string
	Prefix  bool
}

// Entries lists exact routes alphabetically followed by prefix routes in
// match order.
func (t *RouteTable) Entries() []RouteEntry {
	keys := make([]string, 0, len(t.exact))
	for k := range t.exact {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]RouteEntry, 0, len(keys)+len(t.prefixes))
	for _, k := range keys {
		out = append(out, RouteEntry{Key: k, Targets: slices.Clone(t.exact[k])})
	}
	for _, p := range t.prefixes {
		out = append(out, RouteEntry{Key: p.key, Targets: slices.Clone(p.targets), Prefix: true})
	}
	return out
}

// Components returns every id referenced by the table, including the default.
func (t *RouteTable) Components() []string {
	seen := make(map[string]struct{})
	if t.def != "" {
		seen[t.def] = struct{}{}
	}
	for _, targets := range t.exact {
		for _, id := range targets {
			seen[id] = struct{}{}
		}
	}
	for _, p := range t.prefixes {
		for _, id := range p.targets {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
