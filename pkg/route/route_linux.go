//go:build linux

package route

import (
	"fmt"
	"net"
	"net/netip"
	"slices"

	"github.com/jsimonetti/rtnetlink"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"golang.org/x/sys/unix"
)

// fetchRIBMessagesForIP fetches the RIB messages for the given IP address.
// Variable for mocking in tests.
var fetchRIBMessagesForIP = func(ip netip.Addr) ([]rtnetlink.RouteMessage, error) {
	c, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	af := unix.AF_INET
	if ip.Is6() {
		af = unix.AF_INET6
	}

	attr := rtnetlink.RouteAttributes{
		Dst: ip.AsSlice(),
	}

	tx := &rtnetlink.RouteMessage{
		Family:     uint8(af),
		Table:      unix.RT_TABLE_MAIN,
		Attributes: attr,
	}

	rx, err := c.Route.Get(tx)
	if err != nil {
		return nil, err
	}
	return rx, nil
}

// getMostSpecificRoute returns the most specific route for the given IP address.
func getMostSpecificRoute(ip netip.Addr, msgs []rtnetlink.RouteMessage) (Route, error) {
	if len(msgs) == 0 {
		return Route{}, fmt.Errorf("no route returned for %s", ip)
	}
	// RTM_GETROUTE on Linux by default returns the most specific route
	if len(msgs) > 1 {
		// This shouldn't happen
		return Route{}, fmt.Errorf("multiple routes found for %s", ip)
	}
	m := msgs[0]
	dst, ok := netip.AddrFromSlice(m.Attributes.Dst)
	if !ok {
		return Route{}, fmt.Errorf("failed to parse destination address: %v", m.Attributes.Dst)
	}
	gw := netip.Addr{}
	if _, ok := netip.AddrFromSlice(m.Attributes.Gateway); ok {
		gw, _ = netip.AddrFromSlice(m.Attributes.Gateway)
	}
	src, ok := netip.AddrFromSlice(m.Attributes.Src)
	if !ok {
		return Route{}, fmt.Errorf("failed to parse source address: %v", m.Attributes.Src)
	}
	intf, err := net.InterfaceByIndex(int(m.Attributes.OutIface))
	if err != nil {
		return Route{}, fmt.Errorf("failed to get interface by index %d: %v", m.Attributes.OutIface, err)
	}
	// Skip down interfaces
	if intf.Flags&unix.IFF_UP == 0 {
		return Route{}, fmt.Errorf("interface %s is down", intf.Name)
	}
	if dst == ip {
		return Route{
			Destination: dst,
			Gateway:     gw,
			Source:      src,
			Interface:   intf,
		}, nil
	}
	return Route{}, fmt.Errorf("no matching route found for %s", ip)
}

// get retrieves the most specific route for a given IP address.
// It fetches the routing information base (RIB) messages and finds most specific route.
// It returns the route as a Route struct or an error if no matching route is found.
// The function handles both IPv4 and IPv6 addresses.
func get(ip netip.Addr) (Route, error) {
	msgs, err := fetchRIBMessagesForIP(ip)
	if err != nil {
		return Route{}, err
	}
	route, err := getMostSpecificRoute(ip, msgs)
	if err != nil {
		return Route{}, fmt.Errorf("failed to get most specific route: %w", err)
	}
	return route, nil
}

// fetchRIBDump dumps every route of every table and family.
// Variable for mocking in tests.
var fetchRIBDump = func() ([]rtnetlink.RouteMessage, error) {
	c, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Route.List()
}

func list(tables []uint32) ([]fib.RouteEntry, error) {
	msgs, err := fetchRIBDump()
	if err != nil {
		return nil, fmt.Errorf("dumping routes: %w", err)
	}
	entries := make([]fib.RouteEntry, 0, len(msgs))
	for _, m := range msgs {
		if !slices.Contains(tables, tableOf(m)) {
			continue
		}
		if e, ok := entryFromMessage(m); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func tableOf(m rtnetlink.RouteMessage) uint32 {
	if m.Attributes.Table != 0 {
		return m.Attributes.Table
	}
	return uint32(m.Table)
}

func scopeOf(s uint8) fib.Scope {
	switch {
	case s == unix.RT_SCOPE_NOWHERE:
		return fib.ScopeNowhere
	case s == unix.RT_SCOPE_HOST:
		return fib.ScopeHost
	case s == unix.RT_SCOPE_LINK:
		return fib.ScopeLink
	case s >= unix.RT_SCOPE_SITE:
		return fib.ScopeSite
	}
	// 0 and the user-defined scopes below site
	return fib.ScopeUniverse
}

// entryFromMessage converts one RTM_NEWROUTE message. Cloned cache entries,
// source-specific routes and route types the table does not model are
// dropped.
func entryFromMessage(m rtnetlink.RouteMessage) (fib.RouteEntry, bool) {
	if m.Flags&unix.RTM_F_CLONED != 0 || m.SrcLength != 0 || m.Type > unix.RTN_PROHIBIT {
		return fib.RouteEntry{}, false
	}

	var base netip.Addr
	switch m.Family {
	case unix.AF_INET:
		base = netip.IPv4Unspecified()
	case unix.AF_INET6:
		base = netip.IPv6Unspecified()
	default:
		return fib.RouteEntry{}, false
	}
	if len(m.Attributes.Dst) > 0 {
		a, ok := netip.AddrFromSlice(m.Attributes.Dst)
		if !ok {
			return fib.RouteEntry{}, false
		}
		if m.Family == unix.AF_INET {
			a = a.Unmap()
		}
		base = a
	}
	prefix, err := base.Prefix(int(m.DstLength))
	if err != nil {
		return fib.RouteEntry{}, false
	}

	e := fib.RouteEntry{
		Prefix:   prefix,
		Scope:    scopeOf(m.Scope),
		Type:     fib.RouteType(m.Type),
		Protocol: fib.Protocol(m.Protocol),
		Priority: m.Attributes.Priority,
		Flags:    fib.RouteFlags(m.Flags),
	}
	if e.Type.Rejects() {
		return e, true
	}

	if len(m.Attributes.Multipath) > 0 {
		for _, nh := range m.Attributes.Multipath {
			if nh.Hop.Flags&unix.RTNH_F_DEAD != 0 {
				continue
			}
			gw, _ := netip.AddrFromSlice(nh.Gateway)
			e.NextHops = append(e.NextHops, &fib.NextHop{
				Device:  fib.DeviceID(nh.Hop.IfIndex),
				Gateway: gw.Unmap(),
				OnLink:  nh.Hop.Flags&unix.RTNH_F_ONLINK != 0 || !gw.IsValid(),
				Weight:  uint32(nh.Hop.Hops) + 1,
			})
		}
		if len(e.NextHops) == 0 {
			return fib.RouteEntry{}, false
		}
	} else {
		gw, _ := netip.AddrFromSlice(m.Attributes.Gateway)
		e.NextHops = []*fib.NextHop{{
			Device:  fib.DeviceID(m.Attributes.OutIface),
			Gateway: gw.Unmap(),
			OnLink:  m.Flags&unix.RTNH_F_ONLINK != 0 || !gw.IsValid(),
		}}
	}

	// IPv6 connected routes carry universe scope; they are on-link all the
	// same and must be usable to resolve gateways.
	if e.Type == fib.TypeUnicast && e.Scope == fib.ScopeUniverse && allDirect(e.NextHops) {
		e.Scope = fib.ScopeLink
	}
	return e, true
}

func allDirect(hops []*fib.NextHop) bool {
	for _, nh := range hops {
		if nh.Gateway.IsValid() {
			return false
		}
	}
	return true
}
