//go:build linux

package arp

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink/rtnl"
	"github.com/tkjaer/fibinfo/pkg/fib"
	"golang.org/x/sys/unix"
)

// fetchNeighbours lists neighbour entries of one family, optionally
// restricted to one device.
// Variable for mocking in tests.
var fetchNeighbours = func(dev fib.DeviceID, family int) ([]*rtnl.Neigh, error) {
	c, err := rtnl.Dial(nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var ifc *net.Interface
	if dev != fib.NoDevice {
		ifc = &net.Interface{Index: int(dev)}
	}
	return c.Neighbours(ifc, family)
}

func isNeighbourMatch(n *rtnl.Neigh, ip netip.Addr) bool {
	a, ok := netip.AddrFromSlice(n.IP)
	return ok && a.Unmap() == ip && len(n.HwAddr) > 0
}

func lookup(ip netip.Addr, dev fib.DeviceID) (net.HardwareAddr, error) {
	family := unix.AF_INET
	if ip.Is6() {
		family = unix.AF_INET6
	}
	r, err := fetchNeighbours(dev, family)
	if err != nil {
		return nil, fmt.Errorf("listing neighbours: %w", err)
	}
	for _, n := range r {
		if isNeighbourMatch(n, ip) {
			return n.HwAddr, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNotFound, ip)
}
