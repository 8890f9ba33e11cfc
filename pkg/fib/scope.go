package fib

import (
	"fmt"
	"strings"
)

// Scope is the distance class of a route. The zero value, ScopeNowhere,
// marks an unreachable or unresolved scope. Reachable scopes are ordered
// from narrowest to widest: Host < Link < Site < Universe.
type Scope uint8

const (
	ScopeNowhere Scope = iota
	ScopeHost
	ScopeLink
	ScopeSite
	ScopeUniverse
)

// String returns the human-readable scope name.
func (s Scope) String() string {
	switch s {
	case ScopeUniverse:
		return "Universe"
	case ScopeSite:
		return "Site"
	case ScopeLink:
		return "Link"
	case ScopeHost:
		return "Host"
	case ScopeNowhere:
		return "Nowhere"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is one of the reachable scopes.
func (s Scope) Valid() bool {
	return s >= ScopeHost && s <= ScopeUniverse
}

// NarrowerThan reports whether s is strictly narrower than o.
// Nowhere is never narrower (or wider) than anything.
func (s Scope) NarrowerThan(o Scope) bool {
	return s.Valid() && o.Valid() && s < o
}

// ParseScope parses a scope name, ignoring case.
func ParseScope(name string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "universe", "global":
		return ScopeUniverse, nil
	case "site":
		return ScopeSite, nil
	case "link":
		return ScopeLink, nil
	case "host":
		return ScopeHost, nil
	case "nowhere":
		return ScopeNowhere, nil
	}
	return ScopeNowhere, fmt.Errorf("unknown scope %q", name)
}
