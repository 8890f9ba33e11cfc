// Package route reads the kernel's forwarding tables.
package route

import (
	"errors"
	"net"
	"net/netip"

	"github.com/tkjaer/fibinfo/pkg/fib"
)

// ErrUnsupported is returned where the platform has no route source.
var ErrUnsupported = errors.New("kernel route access not supported on this platform")

// Kernel table identifiers.
const (
	TableMain  uint32 = 254
	TableLocal uint32 = 255
)

// Route represents a network route with its destination, gateway, source address, and the associated network interface.
type Route struct {
	Destination netip.Addr
	Gateway     netip.Addr
	Source      netip.Addr
	Interface   *net.Interface
}

// Get retrieves the most specific route for a given IP address and returns it as a Route struct.
// The function handles both IPv4 and IPv6 addresses.
func Get(ip netip.Addr) (Route, error) {
	// Use platform-specific implementation to fetch the route
	return get(ip)
}

// List dumps the given kernel tables (main and local when none are given)
// as forwarding table entries.
func List(tables ...uint32) ([]fib.RouteEntry, error) {
	if len(tables) == 0 {
		tables = []uint32{TableMain, TableLocal}
	}
	return list(tables)
}

// Load inserts the entries of the given kernel tables into t. Entries the
// table rejects are skipped and counted.
func Load(t *fib.Table, tables ...uint32) (loaded, skipped int, err error) {
	entries, err := List(tables...)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if err := t.Append(e); err != nil {
			skipped++
			continue
		}
		loaded++
	}
	return loaded, skipped, nil
}
