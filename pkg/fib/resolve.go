package fib

import (
	"net/netip"
	"slices"
)

// maxResolveDepth bounds a resolution chain: one step per distinct scope.
const maxResolveDepth = 4

// Terminal says how a resolution chain ended.
type Terminal uint8

const (
	TerminalNone   Terminal = iota
	TerminalLocal           // reached a host-scope or locally delivered route
	TerminalOnLink          // reached an on-link next hop
)

func (t Terminal) String() string {
	switch t {
	case TerminalLocal:
		return "local"
	case TerminalOnLink:
		return "onlink"
	default:
		return "none"
	}
}

// Step is one route traversed while resolving a next hop.
type Step struct {
	Prefix  netip.Prefix
	Scope   Scope
	Type    RouteType
	Device  DeviceID
	Gateway netip.Addr
	OnLink  bool
}

func stepOf(e *RouteEntry, nh *NextHop) Step {
	s := Step{Prefix: e.Prefix, Scope: e.Scope, Type: e.Type}
	if nh != nil {
		s.Device = nh.Device
		s.Gateway = nh.Gateway
		s.OnLink = nh.Direct()
	}
	return s
}

// resolution is the immutable result of resolving one next hop against one
// snapshot. It is cached on the NextHop.
type resolution struct {
	gen      uint64
	regGen   uint64
	outcome  Outcome
	scope    Scope
	device   DeviceID
	terminal Terminal
	chain    []Step
	gateway  netip.Addr // unresolved gateway, on failure
	bound    Scope      // scope the gateway had to be narrower than
}

// resolve returns the resolution of nh (a hop of e), reusing the hop's
// cached result when it was computed against the same snapshot and registry.
// Concurrent lookups may compute and store the same result twice.
func (s *snapshot) resolve(e *RouteEntry, nh *NextHop, reg DeviceRegistry, regGen uint64) *resolution {
	if r := nh.cache.Load(); r != nil && r.gen == s.gen && r.regGen == regGen {
		return r
	}
	r := s.walk(e, nh, reg)
	r.gen, r.regGen = s.gen, regGen
	nh.cache.Store(r)
	return r
}

// walk resolves nh iteratively. While the current hop has a gateway and is
// not on-link, the gateway is looked up among routes of strictly narrower
// scope than the route referencing it. The walk ends on a host-scope or
// locally delivered route, or on an on-link hop.
//
// Because every step narrows the scope, a chain reaches Host before the
// depth guard can trigger. Cycles are found by loops once a narrower lookup
// fails; the guard only bounds the loop.
func (s *snapshot) walk(e *RouteEntry, nh *NextHop, reg DeviceRegistry) *resolution {
	chain := []Step{stepOf(e, nh)}

	switch {
	case e.Scope == ScopeHost || e.Type.Delivers():
		return &resolution{outcome: OutcomeFound, scope: ScopeHost, device: nh.Device, terminal: TerminalLocal, chain: chain}
	case !nh.Gateway.IsValid():
		return &resolution{outcome: OutcomeFound, scope: ScopeHost, device: nh.Device, terminal: TerminalOnLink, chain: chain}
	case nh.OnLink:
		return &resolution{outcome: OutcomeFound, scope: ScopeLink, device: nh.Device, terminal: TerminalOnLink, chain: chain}
	}

	path := []*RouteEntry{e}
	scope := e.Scope
	gw := nh.Gateway
	hint := nh.Device

	for {
		if len(chain) >= maxResolveDepth {
			return cycle(gw, scope, chain)
		}
		narrower := func(c *RouteEntry) bool { return c.Scope.NarrowerThan(scope) }
		found := s.best(gw, hint, narrower, reg)
		if found == nil {
			if s.loops(gw, hint, path, reg) {
				return cycle(gw, scope, chain)
			}
			return unreachable(gw, scope, chain)
		}
		if found.Type.Rejects() {
			chain = append(chain, stepOf(found, nil))
			return unreachable(gw, scope, chain)
		}
		fnh, ok := preferredHop(found, hint, reg)
		if !ok {
			return unreachable(gw, scope, chain)
		}
		chain = append(chain, stepOf(found, fnh))

		dev := fnh.Device
		if dev == NoDevice {
			dev = hint
		}
		switch {
		case found.Scope == ScopeHost || found.Type.Delivers():
			return &resolution{outcome: OutcomeFound, scope: found.Scope, device: dev, terminal: TerminalLocal, chain: chain}
		case fnh.Direct():
			return &resolution{outcome: OutcomeFound, scope: found.Scope, device: dev, terminal: TerminalOnLink, chain: chain}
		}

		path = append(path, found)
		scope = found.Scope
		gw = fnh.Gateway
		hint = dev
	}
}

// loops reports whether following gateways through routes of any scope,
// starting at gw, leads back to a route already on path. It is consulted
// only after a narrower-scope lookup failed, to tell a malformed table from
// a merely missing route. The route whose gateway is being followed is never
// its own resolution.
func (s *snapshot) loops(gw netip.Addr, hint DeviceID, path []*RouteEntry, reg DeviceRegistry) bool {
	seen := slices.Clone(path)
	last := path[len(path)-1]
	for range maxResolveDepth {
		from := last
		next := s.best(gw, hint, func(c *RouteEntry) bool { return c != from }, reg)
		if next == nil || next.Type.Rejects() {
			return false
		}
		if slices.Contains(seen, next) {
			return true
		}
		h, ok := preferredHop(next, hint, reg)
		if !ok {
			return false
		}
		if next.Scope == ScopeHost || next.Type.Delivers() || h.Direct() {
			return false
		}
		seen = append(seen, next)
		last = next
		gw = h.Gateway
		if h.Device != NoDevice {
			hint = h.Device
		}
	}
	return true
}

// preferredHop picks the hop of a non-reject entry that resolution follows.
// It reports false when none of the entry's hops is usable.
func preferredHop(e *RouteEntry, hint DeviceID, reg DeviceRegistry) (*NextHop, bool) {
	hops := orderHops(e.NextHops, hint, reg)
	if len(hops) == 0 {
		return nil, false
	}
	return hops[0], true
}

func unreachable(gw netip.Addr, scope Scope, chain []Step) *resolution {
	return &resolution{outcome: OutcomeUnreachable, chain: chain, gateway: gw, bound: scope}
}

func cycle(gw netip.Addr, scope Scope, chain []Step) *resolution {
	return &resolution{outcome: OutcomeError, chain: chain, gateway: gw, bound: scope}
}
